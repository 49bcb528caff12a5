package sync

import "strings"

// Principal is a transient external directory identity name of the form
// localpart@REALM. It is parsed once per reconciliation step and never
// persisted.
type Principal struct {
	Localpart string
	Realm     string
}

// ParsePrincipal splits a full principal name on its last "@". Names
// without a realm component are rejected.
func ParsePrincipal(name string) (Principal, bool) {
	i := strings.LastIndex(name, "@")
	if i <= 0 || i == len(name)-1 {
		return Principal{}, false
	}
	return Principal{Localpart: name[:i], Realm: name[i+1:]}, true
}

// String returns the full localpart@REALM form.
func (p Principal) String() string {
	return p.Localpart + "@" + p.Realm
}

// IsServiceAccount reports whether the principal names a service
// (localpart contains a "/" component, e.g. host/printsvc).
func (p Principal) IsServiceAccount() bool {
	return strings.Contains(p.Localpart, "/")
}

// reservedPrefixes are realm-infrastructure principals that must never
// become local identities.
var reservedPrefixes = []string{"kadmin/", "krbtgt/", "k/m", "wellknown/"}

// IsReserved reports whether the localpart starts with a reserved
// infrastructure prefix, compared case-insensitively.
func (p Principal) IsReserved() bool {
	localpart := strings.ToLower(p.Localpart)
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(localpart, prefix) {
			return true
		}
	}
	return false
}
