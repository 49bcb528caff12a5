package store

import (
	"context"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// ============================================
// REALM SOURCE OPERATIONS
// ============================================

func (s *GORMStore) GetSource(ctx context.Context, slug string) (*models.RealmSource, error) {
	return getByField[models.RealmSource](s.db, ctx, "slug", slug, models.ErrSourceNotFound)
}

func (s *GORMStore) GetSourceByID(ctx context.Context, id string) (*models.RealmSource, error) {
	return getByField[models.RealmSource](s.db, ctx, "id", id, models.ErrSourceNotFound)
}

func (s *GORMStore) ListSources(ctx context.Context) ([]*models.RealmSource, error) {
	return listAll[models.RealmSource](s.db, ctx)
}

// ListSyncableSources returns enabled sources with user sync turned on,
// the set the scheduler iterates each cycle.
func (s *GORMStore) ListSyncableSources(ctx context.Context) ([]*models.RealmSource, error) {
	var sources []*models.RealmSource
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND sync_users = ?", true, true).
		Find(&sources).Error
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *GORMStore) CreateSource(ctx context.Context, source *models.RealmSource) (string, error) {
	if err := source.Validate(); err != nil {
		return "", err
	}
	return createWithID(s.db, ctx, source, func(src *models.RealmSource, id string) { src.ID = id }, source.ID, models.ErrDuplicateSource)
}

func (s *GORMStore) UpdateSource(ctx context.Context, source *models.RealmSource) error {
	var existing models.RealmSource
	if err := s.db.WithContext(ctx).Where("id = ?", source.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrSourceNotFound)
	}
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Slug", "Realm", "Enabled", "SyncUsers", "SyncGuessEmail",
			"SyncUsersPassword", "SyncServicePrincipals", "SyncPrincipal",
			"SyncPassword", "SyncKeytab", "SyncCCache", "Krb5Conf", "UserPath",
			"PropertyMappings", "LDAPUrl", "LDAPBaseDN").
		Updates(source).Error
}

func (s *GORMStore) SetSourceEnabled(ctx context.Context, slug string, enabled bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.RealmSource{}).
		Where("slug = ?", slug).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}

func (s *GORMStore) DeleteSource(ctx context.Context, slug string) error {
	result := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&models.RealmSource{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}
