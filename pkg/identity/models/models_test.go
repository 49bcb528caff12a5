package models

import (
	"testing"
	"time"
)

func TestIdentityPasswords(t *testing.T) {
	t.Run("set and check password", func(t *testing.T) {
		id := &Identity{Username: "alice"}
		if err := id.SetPassword("hunter2"); err != nil {
			t.Fatalf("SetPassword failed: %v", err)
		}
		if !id.PasswordUsable {
			t.Error("expected password to be usable")
		}
		if !id.CheckPassword("hunter2") {
			t.Error("expected correct password to verify")
		}
		if id.CheckPassword("wrong") {
			t.Error("expected wrong password to fail")
		}
	})

	t.Run("unusable password never verifies", func(t *testing.T) {
		id := &Identity{Username: "host/printsvc"}
		if err := id.SetPassword("secret"); err != nil {
			t.Fatalf("SetPassword failed: %v", err)
		}
		id.SetUnusablePassword()
		if id.PasswordUsable {
			t.Error("expected password to be unusable")
		}
		if id.CheckPassword("secret") {
			t.Error("unusable credential must not verify")
		}
	})
}

func TestIdentityAttributes(t *testing.T) {
	id := &Identity{Username: "alice"}

	attrs := id.GetAttributes()
	if attrs == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(attrs) != 0 {
		t.Errorf("expected empty attributes, got %v", attrs)
	}

	if err := id.SetAttributes(map[string]any{"groups": []any{"vpn", "ldap"}}); err != nil {
		t.Fatalf("SetAttributes failed: %v", err)
	}
	got := id.GetAttributes()
	groups, ok := got["groups"].([]any)
	if !ok || len(groups) != 2 {
		t.Errorf("expected 2 groups, got %v", got["groups"])
	}
}

func TestIdentityValidate(t *testing.T) {
	cases := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"valid internal", Identity{Username: "alice", Type: string(TypeInternal)}, false},
		{"valid empty type", Identity{Username: "alice"}, false},
		{"missing username", Identity{}, true},
		{"bad type", Identity{Username: "alice", Type: "robot"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.id.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRealmSourcePropertyMappings(t *testing.T) {
	src := &RealmSource{Slug: "example", Realm: "EXAMPLE.COM"}

	if got := src.GetPropertyMappings(); got != nil {
		t.Errorf("expected nil mappings, got %v", got)
	}

	src.SetPropertyMappings([]string{"guess-email", "realm-attribute"})
	got := src.GetPropertyMappings()
	if len(got) != 2 || got[0] != "guess-email" || got[1] != "realm-attribute" {
		t.Errorf("mapping order not preserved: %v", got)
	}
}

func TestRealmSourceHasSyncCredentials(t *testing.T) {
	src := &RealmSource{Slug: "example", Realm: "EXAMPLE.COM"}
	if src.HasSyncCredentials() {
		t.Error("no principal configured, expected false")
	}
	src.SyncPrincipal = "sync/admin"
	if src.HasSyncCredentials() {
		t.Error("no credential material configured, expected false")
	}
	src.SyncKeytab = "FILE:/etc/sync.keytab"
	if !src.HasSyncCredentials() {
		t.Error("expected credentials to be detected")
	}
}

func TestSyncLeaseExpired(t *testing.T) {
	now := time.Now()
	lease := &SyncLease{Name: "sync/example", ExpiresAt: now.Add(time.Hour)}
	if lease.Expired(now) {
		t.Error("lease should not be expired")
	}
	if !lease.Expired(now.Add(2 * time.Hour)) {
		t.Error("lease should be expired")
	}
}
