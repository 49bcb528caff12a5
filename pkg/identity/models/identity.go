package models

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// IdentityType classifies a local identity.
type IdentityType string

const (
	// TypeInternal is a regular human user.
	TypeInternal IdentityType = "internal"
	// TypeServiceAccount is a non-human, password-less identity derived from
	// a service principal (localpart contains "/").
	TypeServiceAccount IdentityType = "service_account"
)

// IsValid checks if the type is a known IdentityType.
func (t IdentityType) IsValid() bool {
	return t == TypeInternal || t == TypeServiceAccount
}

// ServiceAccountPath is the path assigned to identities created from
// service principals, regardless of the source's configured user path.
const ServiceAccountPath = "service-accounts"

// DefaultUserPath is the path assigned when a source has no user path
// configured.
const DefaultUserPath = "users"

// Identity is a local identity record created or updated by the sync engine.
//
// Scalar fields (username, type, path, email, name) are overwritten on each
// sync; the free-form Attributes document is merged additively with the
// list-unique rule so repeated runs never drop previously recorded values.
type Identity struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Username string `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Type     string `gorm:"default:internal;size:50" json:"type"`
	Path     string `gorm:"size:255" json:"path"`
	Email    string `gorm:"size:255" json:"email,omitempty"`
	Name     string `gorm:"size:255" json:"name,omitempty"`

	// PasswordHash is a bcrypt hash. PasswordUsable is false for identities
	// that must never authenticate with a password (service accounts).
	PasswordHash   string `json:"-"`
	PasswordUsable bool   `gorm:"default:true" json:"password_usable"`

	// Attributes is a JSON-encoded free-form document. Use GetAttributes/
	// SetAttributes.
	Attributes string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Identity.
func (Identity) TableName() string {
	return "identities"
}

// IsServiceAccount reports whether the identity is a service-account variant.
func (i *Identity) IsServiceAccount() bool {
	return IdentityType(i.Type) == TypeServiceAccount
}

// GetAttributes returns the decoded attributes document. An empty or
// malformed document yields an empty map, never nil.
func (i *Identity) GetAttributes() map[string]any {
	attrs := map[string]any{}
	if i.Attributes == "" {
		return attrs
	}
	if err := json.Unmarshal([]byte(i.Attributes), &attrs); err != nil {
		return map[string]any{}
	}
	return attrs
}

// SetAttributes stores the attributes document.
func (i *Identity) SetAttributes(attrs map[string]any) error {
	if attrs == nil {
		i.Attributes = ""
		return nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	i.Attributes = string(data)
	return nil
}

// SetPassword hashes and stores the given password and marks it usable.
func (i *Identity) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	i.PasswordHash = string(hash)
	i.PasswordUsable = true
	return nil
}

// SetUnusablePassword clears the credential and marks it unusable.
// Service accounts never log in with a password.
func (i *Identity) SetUnusablePassword() {
	i.PasswordHash = ""
	i.PasswordUsable = false
}

// CheckPassword verifies a password against the stored hash. Identities with
// unusable credentials always fail.
func (i *Identity) CheckPassword(password string) bool {
	if !i.PasswordUsable || i.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(i.PasswordHash), []byte(password)) == nil
}

// Validate checks if the identity has valid configuration.
func (i *Identity) Validate() error {
	if i.Username == "" {
		return fmt.Errorf("identity username is required")
	}
	if i.Type != "" && !IdentityType(i.Type).IsValid() {
		return fmt.Errorf("invalid identity type: %s", i.Type)
	}
	return nil
}
