package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// ============================================
// IDENTITY & LINK OPERATIONS
// ============================================

func (s *GORMStore) GetIdentity(ctx context.Context, username string) (*models.Identity, error) {
	return getByField[models.Identity](s.db, ctx, "username", username, models.ErrIdentityNotFound)
}

func (s *GORMStore) GetIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	return getByField[models.Identity](s.db, ctx, "id", id, models.ErrIdentityNotFound)
}

func (s *GORMStore) ListIdentities(ctx context.Context) ([]*models.Identity, error) {
	return listAll[models.Identity](s.db, ctx)
}

// FindLink looks up the link for (source, identifier). The identifier is
// compared case-insensitively: Alice@EXAMPLE.COM and alice@example.com
// resolve to the same link.
func (s *GORMStore) FindLink(ctx context.Context, sourceID, identifier string) (*models.SourceLink, error) {
	var link models.SourceLink
	err := s.db.WithContext(ctx).
		Preload("Identity").
		Where("source_id = ? AND LOWER(identifier) = ?", sourceID, strings.ToLower(identifier)).
		First(&link).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrLinkNotFound)
	}
	return &link, nil
}

// CreateLinkedIdentity creates the identity and its source link in a single
// transaction. If either insert fails the whole step rolls back, so a
// principal is never linked to a half-created identity. Uniqueness
// violations surface as models.ErrDuplicateIdentity.
func (s *GORMStore) CreateLinkedIdentity(ctx context.Context, identity *models.Identity, link *models.SourceLink) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if identity.ID == "" {
			identity.ID = uuid.New().String()
		}
		if err := tx.Create(identity).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateIdentity
			}
			return err
		}

		link.ID = uuid.New().String()
		link.IdentityID = identity.ID
		if err := tx.Create(link).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateLink
			}
			return err
		}
		return nil
	})
}

// UpdateIdentity persists scalar fields and the attributes document of an
// existing identity.
func (s *GORMStore) UpdateIdentity(ctx context.Context, identity *models.Identity) error {
	var existing models.Identity
	if err := s.db.WithContext(ctx).Where("id = ?", identity.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrIdentityNotFound)
	}
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Username", "Type", "Path", "Email", "Name", "Attributes", "PasswordUsable").
		Updates(identity).Error
}

// CountLinks returns the number of links recorded for a source.
func (s *GORMStore) CountLinks(ctx context.Context, sourceID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SourceLink{}).
		Where("source_id = ?", sourceID).
		Count(&count).Error
	return count, err
}
