package sync

import (
	"context"
	"reflect"
	"strings"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/events"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

// Reserved property keys. Username, type, and path drive identity creation;
// attributes is the free-form document merged with the list-unique rule.
// Everything else is a scalar overwritten by later contributions.
const (
	PropUsername   = "username"
	PropType       = "type"
	PropPath       = "path"
	PropEmail      = "email"
	PropName       = "name"
	PropAttributes = "attributes"
)

// PropertySet maps attribute names to scalar values or, under the
// attributes key, to a document of list-valued entries. A nil username
// value marks the principal as rejected ("do not sync").
type PropertySet map[string]any

// Username returns the derived username. ok is false when the principal
// was rejected or no username was ever seeded.
func (ps PropertySet) Username() (string, bool) {
	v, present := ps[PropUsername]
	if !present || v == nil {
		return "", false
	}
	s, isString := v.(string)
	if !isString || s == "" {
		return "", false
	}
	return s, true
}

// Reject marks the principal as not-to-be-synced.
func (ps PropertySet) Reject() {
	ps[PropUsername] = nil
}

// String returns the string value for a scalar key, or "" when unset.
func (ps PropertySet) String(key string) string {
	s, _ := ps[key].(string)
	return s
}

// Attributes returns the attributes document, or nil when absent.
func (ps PropertySet) Attributes() map[string]any {
	m, _ := ps[PropAttributes].(map[string]any)
	return m
}

// Merge folds a contribution into the set: scalar keys are overwritten by
// the incoming value, the attributes document is merged with the
// list-unique rule.
func (ps PropertySet) Merge(in PropertySet) {
	for k, v := range in {
		if k == PropAttributes {
			incoming, ok := v.(map[string]any)
			if !ok {
				continue
			}
			ps[PropAttributes] = MergeAttributes(ps.Attributes(), incoming)
			continue
		}
		ps[k] = v
	}
}

// MergeAttributes combines two attribute documents. List values merge as a
// union preserving first-seen order with duplicates removed, so repeated
// contributions and repeated sync runs are additive and idempotent. Scalar
// values are overwritten by the incoming document. The result is a new map;
// neither input is mutated.
func MergeAttributes(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		existing, seen := out[k]
		if !seen {
			out[k] = v
			continue
		}
		a, aIsList := asList(existing)
		b, bIsList := asList(v)
		if aIsList && bIsList {
			out[k] = mergeListUnique(a, b)
			continue
		}
		out[k] = v
	}
	return out
}

// asList normalizes list-valued attributes; JSON round-trips produce []any,
// in-process contributions may use []string.
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// mergeListUnique returns the union of a and b, preserving first-seen order.
func mergeListUnique(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	for _, v := range a {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, existing := range list {
		if reflect.DeepEqual(existing, v) {
			return true
		}
	}
	return false
}

// Contribution is a mapping's tagged result: either no contribution, or a
// partial PropertySet to merge into the accumulator.
type Contribution struct {
	values PropertySet
}

// Skip returns the empty contribution.
func Skip() Contribution {
	return Contribution{}
}

// Values returns a contribution carrying the given properties.
func Values(ps PropertySet) Contribution {
	return Contribution{values: ps}
}

// Empty reports whether the contribution carries nothing to merge.
func (c Contribution) Empty() bool {
	return len(c.values) == 0
}

// Pipeline derives a PropertySet for each principal from a deterministic
// seed plus an ordered sequence of mappings. Mapping failures are isolated:
// the error is reported as a configuration-error event and evaluation
// continues with the next mapping.
type Pipeline struct {
	mappings []Mapping
	events   events.Sink
}

// NewPipeline creates a pipeline over the given ordered mappings.
func NewPipeline(mappings []Mapping, sink events.Sink) *Pipeline {
	if sink == nil {
		sink = events.LogSink{}
	}
	return &Pipeline{mappings: mappings, events: sink}
}

// Seed builds the deterministic base PropertySet for a principal.
// Principals from a foreign realm or with a reserved localpart prefix are
// rejected; service principals get the service-account type and path.
func Seed(principal Principal, source *models.RealmSource) PropertySet {
	path := source.UserPath
	if path == "" {
		path = models.DefaultUserPath
	}
	ps := PropertySet{
		PropUsername: principal.Localpart,
		PropType:     string(models.TypeInternal),
		PropPath:     path,
	}
	if principal.IsServiceAccount() {
		ps[PropType] = string(models.TypeServiceAccount)
		ps[PropPath] = models.ServiceAccountPath
	}
	if !strings.EqualFold(principal.Realm, source.Realm) || principal.IsReserved() {
		ps.Reject()
	}
	return ps
}

// Build runs the full pipeline: seed, then each mapping in order. Mappings
// receive the accumulated set (not a copy) so later mappings may read
// earlier results; their contributions merge with the scalar-overwrite /
// list-unique rules.
func (pl *Pipeline) Build(ctx context.Context, principal Principal, source *models.RealmSource) PropertySet {
	props := Seed(principal, source)

	for _, m := range pl.mappings {
		contribution, err := m.Run(ctx, principal, source, props)
		if err != nil {
			pl.events.Record(ctx, events.KindConfigurationError,
				"Failed to evaluate property mapping: "+err.Error(),
				map[string]any{
					logger.KeyMapping:   m.Name,
					logger.KeyPrincipal: principal.String(),
					logger.KeySource:    source.Slug,
				})
			continue
		}
		if contribution.Empty() {
			logger.Debug("Property mapping contributed nothing",
				logger.KeyMapping, m.Name,
				logger.KeyPrincipal, principal.String())
			continue
		}
		props.Merge(contribution.values)
	}

	return props
}
