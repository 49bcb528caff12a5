package kadmin

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"

	"github.com/realmsync/realmsync/pkg/directory"
)

// principalAttr is the attribute carrying the full localpart@REALM name in
// LDAP-backed KDC schemas (MIT kdb-ldap, FreeIPA).
const principalAttr = "krbPrincipalName"

// searchBuffer bounds how many entries the async search keeps in flight.
const searchBuffer = 64

// Principals enumerates principals from the realm's backing directory.
// The search is asynchronous: entries stream through the iterator as the
// directory returns them, and the underlying connection is held until the
// iterator is closed or exhausted.
func (c *Conn) Principals(ctx context.Context, pattern string) (directory.PrincipalIterator, error) {
	if c.opts.LDAPURL == "" || c.opts.LDAPBaseDN == "" {
		return nil, fmt.Errorf("realm %s has no enumeration endpoint configured", c.realm)
	}

	l, err := ldap.DialURL(c.opts.LDAPURL)
	if err != nil {
		return nil, fmt.Errorf("dial directory %s: %w", c.opts.LDAPURL, err)
	}

	spn, err := ldapServicePrincipal(c.opts.LDAPURL)
	if err != nil {
		l.Close()
		return nil, err
	}
	// Reuse the session's TGT for the directory bind.
	if err := l.GSSAPIBind(&gssapi.Client{Client: c.cl}, spn, ""); err != nil {
		l.Close()
		return nil, &directory.AuthError{Realm: c.realm, Err: fmt.Errorf("directory bind: %w", err)}
	}

	req := ldap.NewSearchRequest(
		c.opts.LDAPBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		principalFilter(pattern),
		[]string{principalAttr},
		nil,
	)

	return &ldapIterator{conn: l, resp: l.SearchAsync(ctx, req, searchBuffer)}, nil
}

// principalFilter builds the LDAP filter for a principal glob pattern.
// The leading "*" wildcard is preserved; everything else is escaped.
func principalFilter(pattern string) string {
	var b strings.Builder
	for _, part := range strings.Split(pattern, "*") {
		if b.Len() > 0 {
			b.WriteString("*")
		}
		b.WriteString(ldap.EscapeFilter(part))
	}
	return fmt.Sprintf("(%s=%s)", principalAttr, b.String())
}

// ldapServicePrincipal derives the directory's SPN (ldap/host) from its URL.
func ldapServicePrincipal(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse directory URL %s: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("directory URL %s has no host", rawURL)
	}
	return "ldap/" + host, nil
}

// ldapIterator adapts a streaming LDAP search to directory.PrincipalIterator.
type ldapIterator struct {
	conn *ldap.Conn
	resp ldap.Response
	cur  string
	done bool
}

func (it *ldapIterator) Next() bool {
	for !it.done && it.resp.Next() {
		entry := it.resp.Entry()
		if entry == nil {
			continue
		}
		if name := entry.GetAttributeValue(principalAttr); name != "" {
			it.cur = name
			return true
		}
	}
	it.finish()
	return false
}

func (it *ldapIterator) Principal() string { return it.cur }

func (it *ldapIterator) Err() error {
	return it.resp.Err()
}

func (it *ldapIterator) Close() error {
	it.finish()
	return nil
}

func (it *ldapIterator) finish() {
	if it.done {
		return
	}
	it.done = true
	it.conn.Close()
}
