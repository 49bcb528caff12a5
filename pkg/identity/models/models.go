// Package models defines the persistent data model for realmsync: realm
// sources, local identities, source links, and sync leases.
//
// All types are GORM models persisted by pkg/identity/store. Domain errors
// are sentinel values (see errors.go) so callers can match with errors.Is.
package models

// AllModels returns all models for GORM AutoMigrate.
func AllModels() []any {
	return []any{
		&RealmSource{},
		&Identity{},
		&SourceLink{},
		&SyncLease{},
	}
}
