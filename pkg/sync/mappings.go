package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// MappingFunc derives a partial PropertySet for a principal. It receives the
// accumulated properties so far and returns either a contribution to merge
// or Skip(). Implementations must be pure: no store access, no side effects.
type MappingFunc func(ctx context.Context, principal Principal, source *models.RealmSource, props PropertySet) (Contribution, error)

// Mapping is a named, ordered pipeline step.
type Mapping struct {
	Name string
	Run  MappingFunc
}

// MappingRegistry resolves the mapping names configured on a source to
// executable pipeline steps.
type MappingRegistry struct {
	mu       sync.RWMutex
	mappings map[string]MappingFunc
}

// NewMappingRegistry creates a registry pre-populated with the built-in
// mappings.
func NewMappingRegistry() *MappingRegistry {
	r := &MappingRegistry{mappings: make(map[string]MappingFunc)}
	r.Register(MappingGuessEmail, guessEmail)
	r.Register(MappingRealmAttribute, realmAttribute)
	return r
}

// Register adds or replaces a named mapping.
func (r *MappingRegistry) Register(name string, fn MappingFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[name] = fn
}

// Resolve returns the mappings for the given names in order. Unknown names
// are reported in the error; the returned slice still carries every mapping
// that did resolve, so a single bad name degrades rather than disables the
// pipeline.
func (r *MappingRegistry) Resolve(names []string) ([]Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved []Mapping
	var unknown []string
	for _, name := range names {
		fn, ok := r.mappings[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		resolved = append(resolved, Mapping{Name: name, Run: fn})
	}
	if len(unknown) > 0 {
		return resolved, fmt.Errorf("unknown property mappings: %s", strings.Join(unknown, ", "))
	}
	return resolved, nil
}

// Built-in mapping names.
const (
	// MappingGuessEmail derives an email address from the principal and
	// realm when the source has sync_guess_email enabled.
	MappingGuessEmail = "guess-email"

	// MappingRealmAttribute records the origin realm under attributes.
	MappingRealmAttribute = "realm-attribute"
)

// guessEmail contributes email = localpart@realm (lower-cased domain).
// Service principals get no email: localpart slashes do not form a valid
// mailbox name.
func guessEmail(ctx context.Context, principal Principal, source *models.RealmSource, props PropertySet) (Contribution, error) {
	if !source.SyncGuessEmail || principal.IsServiceAccount() {
		return Skip(), nil
	}
	return Values(PropertySet{
		PropEmail: principal.Localpart + "@" + strings.ToLower(principal.Realm),
	}), nil
}

// realmAttribute records the origin realm as a list attribute so identities
// linked from several realms over time keep all of them.
func realmAttribute(ctx context.Context, principal Principal, source *models.RealmSource, props PropertySet) (Contribution, error) {
	return Values(PropertySet{
		PropAttributes: map[string]any{
			"realms": []any{source.Realm},
		},
	}), nil
}
