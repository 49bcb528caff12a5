package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RealmSource is the configuration for one external Kerberos realm.
//
// A source carries the credential material used to authenticate to the
// realm's admin service, feature flags controlling what is synchronized,
// and the ordered list of property mapping names applied to each principal.
// Exactly one of SyncPassword, SyncKeytab, SyncCCache is expected to be set;
// when several are set, precedence is password > keytab > ccache.
//
// Sources are managed through the CLI and read-only during a sync run.
type RealmSource struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	Slug    string `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Realm   string `gorm:"uniqueIndex;not null;size:255" json:"realm"`
	Enabled bool   `gorm:"default:true" json:"enabled"`

	// Sync feature flags
	SyncUsers             bool `gorm:"default:true" json:"sync_users"`
	SyncGuessEmail        bool `gorm:"default:false" json:"sync_guess_email"`
	SyncUsersPassword     bool `gorm:"default:true" json:"sync_users_password"`
	SyncServicePrincipals bool `gorm:"default:true" json:"sync_service_principals"`

	// Credential material for the sync principal. SyncKeytab is either
	// TYPE:residual or a base64-encoded keytab payload. SyncCCache must be
	// TYPE:residual.
	SyncPrincipal string `gorm:"size:255" json:"sync_principal"`
	SyncPassword  string `json:"-"`
	SyncKeytab    string `json:"-"`
	SyncCCache    string `gorm:"column:sync_ccache" json:"-"`

	// Krb5Conf is an optional custom krb5.conf blob applied for the duration
	// of calls against this source.
	Krb5Conf string `gorm:"type:text" json:"-"`

	// UserPath is the default path assigned to identities created from this
	// source. Service accounts always get the service-account path instead.
	UserPath string `gorm:"size:255" json:"user_path"`

	// PropertyMappings is a JSON-encoded ordered list of mapping names
	// evaluated for each principal. Use GetPropertyMappings/SetPropertyMappings.
	PropertyMappings string `gorm:"type:text" json:"-"`

	// Principal enumeration endpoint: the realm's backing directory.
	LDAPUrl    string `gorm:"size:255" json:"ldap_url"`
	LDAPBaseDN string `gorm:"column:ldap_base_dn;size:255" json:"ldap_base_dn"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for RealmSource.
func (RealmSource) TableName() string {
	return "realm_sources"
}

// GetPropertyMappings returns the ordered mapping names configured for this
// source. An empty or unset list yields nil.
func (s *RealmSource) GetPropertyMappings() []string {
	if s.PropertyMappings == "" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(s.PropertyMappings), &names); err != nil {
		return nil
	}
	return names
}

// SetPropertyMappings stores the ordered mapping names.
func (s *RealmSource) SetPropertyMappings(names []string) {
	data, err := json.Marshal(names)
	if err != nil {
		return
	}
	s.PropertyMappings = string(data)
}

// HasSyncCredentials reports whether any credential material is configured
// alongside the sync principal.
func (s *RealmSource) HasSyncCredentials() bool {
	return s.SyncPrincipal != "" &&
		(s.SyncPassword != "" || s.SyncKeytab != "" || s.SyncCCache != "")
}

// Validate checks if the source has valid configuration.
func (s *RealmSource) Validate() error {
	if s.Slug == "" {
		return fmt.Errorf("source slug is required")
	}
	if s.Realm == "" {
		return fmt.Errorf("source realm is required")
	}
	return nil
}
