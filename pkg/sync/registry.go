package sync

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/directory"
	"github.com/realmsync/realmsync/pkg/directory/kadmin"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

// DialerFactory builds a directory dialer for one source. The production
// factory wires pkg/directory/kadmin with the source's enumeration endpoint;
// tests inject fakes.
type DialerFactory func(source *models.RealmSource) directory.Dialer

// KadminDialerFactory is the production factory.
func KadminDialerFactory(krb5ConfPath string) DialerFactory {
	return func(source *models.RealmSource) directory.Dialer {
		return kadmin.NewDialer(kadmin.Options{
			Krb5ConfPath: krb5ConfPath,
			LDAPURL:      source.LDAPUrl,
			LDAPBaseDN:   source.LDAPBaseDN,
		})
	}
}

// Registry owns one cached directory connection per realm source.
//
// Connection construction is expensive and the underlying client state is
// costly to abandon, so connections are reused for the lifetime of the
// process. Construction per source key is serialized: concurrent callers
// for the same source share a single dial and observe the same result.
// Failed dials are never cached; the next call retries from scratch.
type Registry struct {
	factory DialerFactory
	tmpDir  string

	group singleflight.Group

	mu    sync.Mutex
	conns map[string]directory.Connection
}

// NewRegistry creates an empty registry. Materialized keytabs are written
// under tmpDir; pass "" for the system temp directory.
func NewRegistry(factory DialerFactory, tmpDir string) *Registry {
	if tmpDir == "" {
		tmpDir = filepath.Join(os.TempDir(), "realmsync", "sources")
	}
	return &Registry{
		factory: factory,
		tmpDir:  tmpDir,
		conns:   make(map[string]directory.Connection),
	}
}

// Get returns the cached connection for the source, constructing it on
// first use. Returns (nil, nil) when the source has no sync principal or no
// credential material configured: that is "no connection", not an error.
func (r *Registry) Get(ctx context.Context, source *models.RealmSource) (directory.Connection, error) {
	if source.SyncPrincipal == "" {
		return nil, nil
	}

	r.mu.Lock()
	conn, ok := r.conns[source.ID]
	r.mu.Unlock()
	if ok {
		return conn, nil
	}

	v, err, _ := r.group.Do(source.ID, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// completed the dial while we waited to enter.
		r.mu.Lock()
		if conn, ok := r.conns[source.ID]; ok {
			r.mu.Unlock()
			return conn, nil
		}
		r.mu.Unlock()

		conn, err := r.dial(ctx, source)
		if err != nil || conn == nil {
			return conn, err
		}

		r.mu.Lock()
		r.conns[source.ID] = conn
		r.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(directory.Connection), nil
}

// dial constructs a connection with credential precedence
// password > keytab > ccache.
func (r *Registry) dial(ctx context.Context, source *models.RealmSource) (directory.Connection, error) {
	dialer := r.factory(source)

	switch {
	case source.SyncPassword != "":
		return dialer.DialPassword(ctx, source.SyncPrincipal, source.SyncPassword, source.Realm)

	case source.SyncKeytab != "":
		ref, err := r.keytabRef(source)
		if err != nil {
			return nil, err
		}
		return dialer.DialKeytab(ctx, source.SyncPrincipal, ref, source.Realm)

	case source.SyncCCache != "":
		return dialer.DialCCache(ctx, source.SyncPrincipal, source.SyncCCache, source.Realm)
	}

	// Principal configured but no credential material.
	return nil, nil
}

// keytabRef resolves the source's keytab to TYPE:residual form. Material
// not already in that form is base64 payload, materialized to a private
// per-source file so the directory client can read it.
func (r *Registry) keytabRef(source *models.RealmSource) (string, error) {
	if strings.Contains(source.SyncKeytab, ":") {
		return source.SyncKeytab, nil
	}

	data, err := base64.StdEncoding.DecodeString(source.SyncKeytab)
	if err != nil {
		return "", fmt.Errorf("decode keytab for source %s: %w", source.Slug, err)
	}

	dir := filepath.Join(r.tmpDir, source.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create keytab directory: %w", err)
	}
	path := filepath.Join(dir, "keytab")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write keytab: %w", err)
	}
	return "FILE:" + path, nil
}

// Invalidate closes and drops the cached connection for a source, forcing a
// fresh dial on next use. Call after credential changes.
func (r *Registry) Invalidate(sourceID string) {
	r.mu.Lock()
	conn, ok := r.conns[sourceID]
	delete(r.conns, sourceID)
	r.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close directory connection", logger.KeyError, err)
		}
	}
}

// Close closes all cached connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]directory.Connection)
	r.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
