// Package directory defines the contract between the sync engine and the
// external directory authority (a Kerberos-style realm).
//
// The engine only consumes these interfaces; the wire protocol lives in the
// implementations (pkg/directory/kadmin for production, fakes in tests).
package directory

import (
	"context"
	"fmt"
)

// Connection is an authenticated session against one realm's directory.
//
// Connections are expensive to construct and are cached and reused by the
// sync engine's connection registry; implementations must be safe for
// sequential reuse across runs.
type Connection interface {
	// Principals enumerates principal names (localpart@REALM) matching the
	// glob pattern. The iterator is lazy, finite, and non-restartable.
	Principals(ctx context.Context, pattern string) (PrincipalIterator, error)

	// PrincipalExists reports whether the named principal exists in the realm.
	PrincipalExists(ctx context.Context, principal string) (bool, error)

	// Close releases the session.
	Close() error
}

// PrincipalIterator walks an enumeration result in directory order.
//
//	for it.Next() {
//		name := it.Principal()
//	}
//	if err := it.Err(); err != nil { ... }
type PrincipalIterator interface {
	Next() bool
	Principal() string
	Err() error
	Close() error
}

// Dialer constructs authenticated connections. Exactly one method is used
// per source, chosen by the credential-precedence rule
// password > keytab > ccache.
type Dialer interface {
	DialPassword(ctx context.Context, principal, password, realm string) (Connection, error)

	// DialKeytab accepts a keytab reference in TYPE:residual form
	// (e.g. FILE:/path/to/keytab).
	DialKeytab(ctx context.Context, principal, keytabRef, realm string) (Connection, error)

	// DialCCache accepts a credential cache reference in TYPE:residual form.
	DialCCache(ctx context.Context, principal, ccacheRef, realm string) (Connection, error)
}

// AuthError indicates the directory rejected the configured credentials.
type AuthError struct {
	Principal string
	Realm     string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s@%s: %v", e.Principal, e.Realm, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// slicePrincipals is a PrincipalIterator over a fixed name list, used by
// in-memory Connection implementations.
type slicePrincipals struct {
	names []string
	pos   int
	cur   string
}

// SlicePrincipals returns an iterator over a fixed list of principal names.
func SlicePrincipals(names []string) PrincipalIterator {
	return &slicePrincipals{names: names}
}

func (s *slicePrincipals) Next() bool {
	if s.pos >= len(s.names) {
		return false
	}
	s.cur = s.names[s.pos]
	s.pos++
	return true
}

func (s *slicePrincipals) Principal() string { return s.cur }
func (s *slicePrincipals) Err() error        { return nil }
func (s *slicePrincipals) Close() error      { return nil }
