package models

import "time"

// SourceLink connects a local identity to the external principal it was
// derived from. Unique per (source, identifier); the identifier is the full
// localpart@REALM principal name and is matched case-insensitively.
//
// Links are created on first sight of a principal and never deleted by the
// sync engine.
type SourceLink struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	SourceID   string `gorm:"uniqueIndex:idx_source_identifier;not null;size:36" json:"source_id"`
	Identifier string `gorm:"uniqueIndex:idx_source_identifier;not null;size:255" json:"identifier"`
	IdentityID string `gorm:"not null;size:36" json:"identity_id"`

	Source   RealmSource `gorm:"foreignKey:SourceID" json:"-"`
	Identity Identity    `gorm:"foreignKey:IdentityID" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for SourceLink.
func (SourceLink) TableName() string {
	return "source_links"
}
