package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// ============================================
// SYNC LEASE OPERATIONS
// ============================================
//
// Leases coordinate sync runs across the worker fleet through the shared
// database. Acquisition is non-blocking and race-safe without row locking:
// a fresh lease is claimed with an INSERT (unique name), an expired one is
// stolen with a conditional UPDATE guarded on the old expiry. Exactly one
// concurrent acquirer can win either path.

// TryAcquireLease attempts to acquire the named lease for the given holder.
// Returns models.ErrLeaseBusy immediately when another holder owns a valid
// lease; it never waits. Any other error indicates the lease backend itself
// failed, which callers treat as "skip this cycle".
func (s *GORMStore) TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (*models.SyncLease, error) {
	now := time.Now()
	lease := models.SyncLease{
		Name:      name,
		Holder:    holder,
		Epoch:     1,
		ExpiresAt: now.Add(ttl),
	}

	err := s.db.WithContext(ctx).Create(&lease).Error
	if err == nil {
		return &lease, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, err
	}

	// A lease row exists. Steal it iff it has expired; the expiry guard in
	// the WHERE clause makes concurrent steal attempts resolve to one winner.
	result := s.db.WithContext(ctx).
		Model(&models.SyncLease{}).
		Where("name = ? AND expires_at <= ?", name, now).
		Updates(map[string]any{
			"holder":     holder,
			"expires_at": now.Add(ttl),
			"epoch":      gorm.Expr("epoch + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrLeaseBusy
	}

	var stolen models.SyncLease
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&stolen).Error; err != nil {
		return nil, err
	}
	return &stolen, nil
}

// IsLeaseLocked reports whether the named lease currently has a valid holder.
func (s *GORMStore) IsLeaseLocked(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SyncLease{}).
		Where("name = ? AND expires_at > ?", name, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReleaseLease releases a held lease. The holder and epoch must match the
// acquired lease: releasing after the lease expired and was stolen is a
// harmless no-op reported as models.ErrLeaseNotHeld.
func (s *GORMStore) ReleaseLease(ctx context.Context, lease *models.SyncLease) error {
	result := s.db.WithContext(ctx).
		Where("name = ? AND holder = ? AND epoch = ?", lease.Name, lease.Holder, lease.Epoch).
		Delete(&models.SyncLease{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrLeaseNotHeld
	}
	return nil
}
