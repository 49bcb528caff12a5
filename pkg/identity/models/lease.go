package models

import "time"

// SyncLease is a named, time-bounded mutual-exclusion grant coordinating
// sync runs across independent worker processes. At most one valid holder
// exists per name at any instant; an expired lease may be stolen by the
// next acquirer, which increments the epoch so a stale holder's release
// becomes a no-op.
type SyncLease struct {
	Name      string    `gorm:"primaryKey;size:255" json:"name"`
	Holder    string    `gorm:"not null;size:255" json:"holder"`
	Epoch     int64     `gorm:"not null;default:1" json:"epoch"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SyncLease.
func (SyncLease) TableName() string {
	return "sync_leases"
}

// Expired reports whether the lease has passed its expiry at the given time.
func (l *SyncLease) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
