package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmsync/realmsync/pkg/events"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		localpart string
		realm     string
		ok        bool
	}{
		{"plain user", "alice@CORP.EXAMPLE", "alice", "CORP.EXAMPLE", true},
		{"service principal", "host/web01@CORP.EXAMPLE", "host/web01", "CORP.EXAMPLE", true},
		{"enterprise localpart", "alice@corp.example@CORP.EXAMPLE", "alice@corp.example", "CORP.EXAMPLE", true},
		{"missing realm", "alice", "", "", false},
		{"empty realm", "alice@", "", "", false},
		{"empty localpart", "@CORP.EXAMPLE", "", "", false},
		{"empty string", "", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := ParsePrincipal(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.localpart, p.Localpart)
				assert.Equal(t, tc.realm, p.Realm)
				assert.Equal(t, tc.input, p.String())
			}
		})
	}
}

func TestPrincipalIsReserved(t *testing.T) {
	reserved := []string{
		"krbtgt/CORP.EXAMPLE@CORP.EXAMPLE",
		"kadmin/admin@CORP.EXAMPLE",
		"kadmin/changepw@CORP.EXAMPLE",
		"K/M@CORP.EXAMPLE",
		"WELLKNOWN/ANONYMOUS@CORP.EXAMPLE",
	}
	for _, name := range reserved {
		p, ok := ParsePrincipal(name)
		require.True(t, ok, name)
		assert.True(t, p.IsReserved(), name)
	}

	normal := []string{"alice@CORP.EXAMPLE", "host/web01@CORP.EXAMPLE", "kadminson@CORP.EXAMPLE"}
	for _, name := range normal {
		p, ok := ParsePrincipal(name)
		require.True(t, ok, name)
		assert.False(t, p.IsReserved(), name)
	}
}

func TestSeedDefaults(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", UserPath: "directory/corp"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	ps := Seed(p, source)
	username, ok := ps.Username()
	require.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.Equal(t, string(models.TypeInternal), ps.String(PropType))
	assert.Equal(t, "directory/corp", ps.String(PropPath))
}

func TestSeedFallbackPath(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	ps := Seed(p, source)
	assert.Equal(t, models.DefaultUserPath, ps.String(PropPath))
}

func TestSeedServiceAccount(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", UserPath: "directory/corp"}
	p, _ := ParsePrincipal("host/web01@CORP.EXAMPLE")

	ps := Seed(p, source)
	username, ok := ps.Username()
	require.True(t, ok)
	assert.Equal(t, "host/web01", username)
	assert.Equal(t, string(models.TypeServiceAccount), ps.String(PropType))
	assert.Equal(t, models.ServiceAccountPath, ps.String(PropPath))
}

func TestSeedRejectsForeignRealm(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("alice@OTHER.EXAMPLE")

	ps := Seed(p, source)
	_, ok := ps.Username()
	assert.False(t, ok)
}

func TestSeedRealmComparisonIsCaseInsensitive(t *testing.T) {
	source := &models.RealmSource{Realm: "corp.example"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	ps := Seed(p, source)
	_, ok := ps.Username()
	assert.True(t, ok)
}

func TestSeedRejectsReserved(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("krbtgt/CORP.EXAMPLE@CORP.EXAMPLE")

	ps := Seed(p, source)
	_, ok := ps.Username()
	assert.False(t, ok)
}

func TestMergeScalarOverwrite(t *testing.T) {
	ps := PropertySet{PropUsername: "alice", PropEmail: "old@corp.example"}
	ps.Merge(PropertySet{PropEmail: "new@corp.example", PropName: "Alice"})

	assert.Equal(t, "new@corp.example", ps.String(PropEmail))
	assert.Equal(t, "Alice", ps.String(PropName))
	username, ok := ps.Username()
	require.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestMergeAttributesListUnique(t *testing.T) {
	dst := map[string]any{"realms": []any{"CORP.EXAMPLE", "EU.CORP.EXAMPLE"}}
	src := map[string]any{"realms": []any{"EU.CORP.EXAMPLE", "ASIA.CORP.EXAMPLE"}}

	out := MergeAttributes(dst, src)
	assert.Equal(t, []any{"CORP.EXAMPLE", "EU.CORP.EXAMPLE", "ASIA.CORP.EXAMPLE"}, out["realms"])
}

func TestMergeAttributesIdempotent(t *testing.T) {
	dst := map[string]any{"realms": []any{"CORP.EXAMPLE"}}
	src := map[string]any{"realms": []any{"CORP.EXAMPLE"}}

	once := MergeAttributes(dst, src)
	twice := MergeAttributes(once, src)
	assert.Equal(t, once, twice)
}

func TestMergeAttributesStringSliceNormalized(t *testing.T) {
	dst := map[string]any{"realms": []string{"CORP.EXAMPLE"}}
	src := map[string]any{"realms": []any{"EU.CORP.EXAMPLE"}}

	out := MergeAttributes(dst, src)
	assert.Equal(t, []any{"CORP.EXAMPLE", "EU.CORP.EXAMPLE"}, out["realms"])
}

func TestMergeAttributesScalarOverwrite(t *testing.T) {
	dst := map[string]any{"team": "storage", "realms": []any{"CORP.EXAMPLE"}}
	src := map[string]any{"team": "platform"}

	out := MergeAttributes(dst, src)
	assert.Equal(t, "platform", out["team"])
	assert.Equal(t, []any{"CORP.EXAMPLE"}, out["realms"])
}

func TestMergeAttributesInputsNotMutated(t *testing.T) {
	dst := map[string]any{"realms": []any{"A"}}
	src := map[string]any{"realms": []any{"B"}}

	_ = MergeAttributes(dst, src)
	assert.Equal(t, []any{"A"}, dst["realms"])
	assert.Equal(t, []any{"B"}, src["realms"])
}

func TestPipelineMappingErrorIsolated(t *testing.T) {
	sink := &events.Recorder{}
	boom := Mapping{Name: "boom", Run: func(ctx context.Context, p Principal, s *models.RealmSource, ps PropertySet) (Contribution, error) {
		return Contribution{}, errors.New("expression failed")
	}}
	setName := Mapping{Name: "set-name", Run: func(ctx context.Context, p Principal, s *models.RealmSource, ps PropertySet) (Contribution, error) {
		return Values(PropertySet{PropName: "Alice"}), nil
	}}
	pl := NewPipeline([]Mapping{boom, setName}, sink)

	source := &models.RealmSource{Slug: "corp", Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")
	ps := pl.Build(context.Background(), p, source)

	// The failing mapping is skipped, later mappings still run.
	assert.Equal(t, "Alice", ps.String(PropName))
	username, ok := ps.Username()
	require.True(t, ok)
	assert.Equal(t, "alice", username)

	recorded := sink.ByKind(events.KindConfigurationError)
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Message, "expression failed")
	assert.Equal(t, "boom", recorded[0].Fields["mapping"])
}

func TestPipelineOrderMatters(t *testing.T) {
	first := Mapping{Name: "first", Run: func(ctx context.Context, p Principal, s *models.RealmSource, ps PropertySet) (Contribution, error) {
		return Values(PropertySet{PropEmail: "first@corp.example"}), nil
	}}
	second := Mapping{Name: "second", Run: func(ctx context.Context, p Principal, s *models.RealmSource, ps PropertySet) (Contribution, error) {
		return Values(PropertySet{PropEmail: "second@corp.example"}), nil
	}}
	pl := NewPipeline([]Mapping{first, second}, nil)

	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")
	ps := pl.Build(context.Background(), p, source)
	assert.Equal(t, "second@corp.example", ps.String(PropEmail))
}

func TestGuessEmailMapping(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", SyncGuessEmail: true}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	c, err := guessEmail(context.Background(), p, source, PropertySet{})
	require.NoError(t, err)
	require.False(t, c.Empty())
	assert.Equal(t, "alice@corp.example", c.values.String(PropEmail))
}

func TestGuessEmailDisabled(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", SyncGuessEmail: false}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	c, err := guessEmail(context.Background(), p, source, PropertySet{})
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestGuessEmailSkipsServicePrincipals(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", SyncGuessEmail: true}
	p, _ := ParsePrincipal("host/web01@CORP.EXAMPLE")

	c, err := guessEmail(context.Background(), p, source, PropertySet{})
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestRealmAttributeMapping(t *testing.T) {
	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	p, _ := ParsePrincipal("alice@CORP.EXAMPLE")

	c, err := realmAttribute(context.Background(), p, source, PropertySet{})
	require.NoError(t, err)
	require.False(t, c.Empty())
	assert.Equal(t, []any{"CORP.EXAMPLE"}, c.values.Attributes()["realms"])
}

func TestMappingRegistryResolve(t *testing.T) {
	r := NewMappingRegistry()

	resolved, err := r.Resolve([]string{MappingGuessEmail, MappingRealmAttribute})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, MappingGuessEmail, resolved[0].Name)
	assert.Equal(t, MappingRealmAttribute, resolved[1].Name)
}

func TestMappingRegistryResolveUnknownDegrades(t *testing.T) {
	r := NewMappingRegistry()

	resolved, err := r.Resolve([]string{"bogus", MappingGuessEmail})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	require.Len(t, resolved, 1)
	assert.Equal(t, MappingGuessEmail, resolved[0].Name)
}
