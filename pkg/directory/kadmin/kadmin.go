// Package kadmin implements the directory client against a real Kerberos
// realm using gokrb5 for authentication and the realm's backing directory
// (FreeIPA / LDAP-backed KDC) for principal enumeration.
//
// Authentication obtains a TGT for the sync principal, which validates the
// configured credential material against the KDC. Existence probes request a
// ticket for the target principal and map the KDC's unknown-principal error
// to false.
package kadmin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/directory"
)

// DefaultKrb5ConfPath is used when neither the KRB5_CONFIG environment slot
// nor Options.Krb5ConfPath is set.
const DefaultKrb5ConfPath = "/etc/krb5.conf"

// Options configures a Dialer for one realm source.
type Options struct {
	// Krb5ConfPath overrides the krb5.conf location. The KRB5_CONFIG
	// environment slot takes precedence: the ambient-config scope relies on
	// that ordering to apply per-source configuration.
	Krb5ConfPath string

	// LDAPURL is the realm's backing directory endpoint used for principal
	// enumeration (ldap:// or ldaps://).
	LDAPURL string

	// LDAPBaseDN is the search base for principal entries.
	LDAPBaseDN string
}

// Dialer constructs authenticated realm connections.
type Dialer struct {
	opts Options
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts}
}

var _ directory.Dialer = (*Dialer)(nil)

// DialPassword authenticates with the principal's password.
func (d *Dialer) DialPassword(ctx context.Context, principal, password, realm string) (directory.Connection, error) {
	cfg, err := d.loadKrb5Conf()
	if err != nil {
		return nil, err
	}
	localpart := stripRealm(principal)
	cl := client.NewWithPassword(localpart, realm, password, cfg, client.DisablePAFXFAST(true))
	return d.login(cl, localpart, realm)
}

// DialKeytab authenticates with a keytab reference in TYPE:residual form.
// Only FILE keytabs are supported.
func (d *Dialer) DialKeytab(ctx context.Context, principal, keytabRef, realm string) (directory.Connection, error) {
	path, err := residual(keytabRef, "FILE")
	if err != nil {
		return nil, fmt.Errorf("keytab reference: %w", err)
	}
	kt, err := keytab.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load keytab %s: %w", path, err)
	}
	cfg, err := d.loadKrb5Conf()
	if err != nil {
		return nil, err
	}
	localpart := stripRealm(principal)
	cl := client.NewWithKeytab(localpart, realm, kt, cfg, client.DisablePAFXFAST(true))
	return d.login(cl, localpart, realm)
}

// DialCCache authenticates with a credential cache reference in
// TYPE:residual form. Only FILE caches are supported.
func (d *Dialer) DialCCache(ctx context.Context, principal, ccacheRef, realm string) (directory.Connection, error) {
	path, err := residual(ccacheRef, "FILE")
	if err != nil {
		return nil, fmt.Errorf("ccache reference: %w", err)
	}
	cc, err := credentials.LoadCCache(path)
	if err != nil {
		return nil, fmt.Errorf("load ccache %s: %w", path, err)
	}
	cfg, err := d.loadKrb5Conf()
	if err != nil {
		return nil, err
	}
	localpart := stripRealm(principal)
	cl, err := client.NewFromCCache(cc, cfg, client.DisablePAFXFAST(true))
	if err != nil {
		return nil, &directory.AuthError{Principal: localpart, Realm: realm, Err: err}
	}
	return &Conn{cl: cl, opts: d.opts, realm: realm}, nil
}

// login validates the credentials by obtaining a TGT.
func (d *Dialer) login(cl *client.Client, principal, realm string) (directory.Connection, error) {
	if err := cl.Login(); err != nil {
		cl.Destroy()
		return nil, &directory.AuthError{Principal: principal, Realm: realm, Err: err}
	}
	logger.Debug("Authenticated to realm", logger.KeyPrincipal, principal, logger.KeyRealm, realm)
	return &Conn{cl: cl, opts: d.opts, realm: realm}, nil
}

// loadKrb5Conf resolves and parses the krb5 configuration. The process-wide
// KRB5_CONFIG slot wins so scoped per-source overrides take effect.
func (d *Dialer) loadKrb5Conf() (*krb5config.Config, error) {
	path := os.Getenv("KRB5_CONFIG")
	if path == "" {
		path = d.opts.Krb5ConfPath
	}
	if path == "" {
		path = DefaultKrb5ConfPath
	}
	cfg, err := krb5config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse krb5.conf %s: %w", path, err)
	}
	return cfg, nil
}

// Conn is an authenticated session against one realm.
type Conn struct {
	cl    *client.Client
	opts  Options
	realm string
}

var _ directory.Connection = (*Conn)(nil)

// PrincipalExists probes the KDC with a ticket request for the principal.
func (c *Conn) PrincipalExists(ctx context.Context, principal string) (bool, error) {
	_, _, err := c.cl.GetServiceTicket(stripRealm(principal))
	if err == nil {
		return true, nil
	}
	if isUnknownPrincipal(err) {
		return false, nil
	}
	return false, fmt.Errorf("principal probe for %s: %w", principal, err)
}

// Close destroys the session and its cached tickets.
func (c *Conn) Close() error {
	c.cl.Destroy()
	return nil
}

// isUnknownPrincipal matches the KDC error codes for a missing client or
// service principal. gokrb5 folds KRB-ERROR details into the error string.
func isUnknownPrincipal(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "KDC_ERR_S_PRINCIPAL_UNKNOWN") ||
		strings.Contains(msg, "KDC_ERR_C_PRINCIPAL_UNKNOWN")
}

// stripRealm removes a trailing @REALM component from a principal name.
func stripRealm(principal string) string {
	if i := strings.LastIndex(principal, "@"); i >= 0 {
		return principal[:i]
	}
	return principal
}

// residual splits a TYPE:residual reference, requiring the given type.
// A bare path is accepted as shorthand for TYPE:path.
func residual(ref, wantType string) (string, error) {
	typ, rest, found := strings.Cut(ref, ":")
	if !found {
		return ref, nil
	}
	if !strings.EqualFold(typ, wantType) {
		return "", fmt.Errorf("unsupported credential type %q (only %s is supported)", typ, wantType)
	}
	if rest == "" {
		return "", fmt.Errorf("empty %s residual", wantType)
	}
	return rest, nil
}
