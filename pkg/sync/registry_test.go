package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmsync/realmsync/pkg/directory"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

type countingDialer struct {
	mu    stdsync.Mutex
	calls []string
	refs  []string
	err   error
}

func (d *countingDialer) record(method, ref string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, method)
	d.refs = append(d.refs, ref)
}

func (d *countingDialer) DialPassword(ctx context.Context, principal, password, realm string) (directory.Connection, error) {
	d.record("password", "")
	if d.err != nil {
		return nil, d.err
	}
	return &stubConn{}, nil
}

func (d *countingDialer) DialKeytab(ctx context.Context, principal, keytabRef, realm string) (directory.Connection, error) {
	d.record("keytab", keytabRef)
	if d.err != nil {
		return nil, d.err
	}
	return &stubConn{}, nil
}

func (d *countingDialer) DialCCache(ctx context.Context, principal, ccacheRef, realm string) (directory.Connection, error) {
	d.record("ccache", ccacheRef)
	if d.err != nil {
		return nil, d.err
	}
	return &stubConn{}, nil
}

func newCountingRegistry(t *testing.T) (*Registry, *countingDialer) {
	t.Helper()
	dialer := &countingDialer{}
	registry := NewRegistry(func(source *models.RealmSource) directory.Dialer {
		return dialer
	}, t.TempDir())
	t.Cleanup(func() { _ = registry.Close() })
	return registry, dialer
}

func TestRegistryNoPrincipal(t *testing.T) {
	registry, dialer := newCountingRegistry(t)

	conn, err := registry.Get(context.Background(), &models.RealmSource{ID: "s1"})
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.Empty(t, dialer.calls)
}

func TestRegistryNoCredentialMaterial(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	source := &models.RealmSource{ID: "s1", SyncPrincipal: "sync/admin@CORP.EXAMPLE"}

	conn, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.Empty(t, dialer.calls)
}

func TestRegistryCredentialPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		source models.RealmSource
		method string
	}{
		{
			name: "password wins over keytab and ccache",
			source: models.RealmSource{
				SyncPassword: "hunter2",
				SyncKeytab:   "FILE:/etc/sync.keytab",
				SyncCCache:   "FILE:/tmp/krb5cc_0",
			},
			method: "password",
		},
		{
			name: "keytab wins over ccache",
			source: models.RealmSource{
				SyncKeytab: "FILE:/etc/sync.keytab",
				SyncCCache: "FILE:/tmp/krb5cc_0",
			},
			method: "keytab",
		},
		{
			name:   "ccache alone",
			source: models.RealmSource{SyncCCache: "FILE:/tmp/krb5cc_0"},
			method: "ccache",
		},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			registry, dialer := newCountingRegistry(t)
			source := tc.source
			source.ID = "s" + string(rune('a'+i))
			source.SyncPrincipal = "sync/admin@CORP.EXAMPLE"

			conn, err := registry.Get(context.Background(), &source)
			require.NoError(t, err)
			require.NotNil(t, conn)
			assert.Equal(t, []string{tc.method}, dialer.calls)
		})
	}
}

func TestRegistryCachesConnections(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	source := &models.RealmSource{
		ID:            "s1",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncPassword:  "hunter2",
	}

	first, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	second, err := registry.Get(context.Background(), source)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, dialer.calls, 1)
}

func TestRegistryFailedDialNotCached(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	dialer.err = errors.New("KDC unreachable")
	source := &models.RealmSource{
		ID:            "s1",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncPassword:  "hunter2",
	}

	_, err := registry.Get(context.Background(), source)
	require.Error(t, err)

	dialer.err = nil
	conn, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Len(t, dialer.calls, 2, "failed dial must be retried, not cached")
}

func TestRegistryConcurrentGetSharesDial(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	source := &models.RealmSource{
		ID:            "s1",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncPassword:  "hunter2",
	}

	var wg stdsync.WaitGroup
	conns := make([]directory.Connection, 8)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := registry.Get(context.Background(), source)
			assert.NoError(t, err)
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	for _, conn := range conns {
		assert.Same(t, conns[0], conn)
	}
	assert.Len(t, dialer.calls, 1)
}

func TestRegistryInvalidateForcesRedial(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	source := &models.RealmSource{
		ID:            "s1",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncPassword:  "hunter2",
	}

	_, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	registry.Invalidate("s1")
	_, err = registry.Get(context.Background(), source)
	require.NoError(t, err)
	assert.Len(t, dialer.calls, 2)
}

func TestRegistryKeytabReferencePassedThrough(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	source := &models.RealmSource{
		ID:            "s1",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncKeytab:    "FILE:/etc/sync.keytab",
	}

	_, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, dialer.refs, 1)
	assert.Equal(t, "FILE:/etc/sync.keytab", dialer.refs[0])
}

func TestRegistryKeytabMaterialized(t *testing.T) {
	registry, dialer := newCountingRegistry(t)
	payload := []byte{0x05, 0x02, 0x00, 0x00, 0x00, 0x20}
	source := &models.RealmSource{
		ID:            "s1",
		Slug:          "corp",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncKeytab:    base64.StdEncoding.EncodeToString(payload),
	}

	_, err := registry.Get(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, dialer.refs, 1)

	ref := dialer.refs[0]
	require.True(t, strings.HasPrefix(ref, "FILE:"), ref)
	path := strings.TrimPrefix(ref, "FILE:")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRegistryKeytabBadBase64(t *testing.T) {
	registry, _ := newCountingRegistry(t)
	source := &models.RealmSource{
		ID:            "s1",
		Slug:          "corp",
		SyncPrincipal: "sync/admin@CORP.EXAMPLE",
		SyncKeytab:    "not base64!!!",
	}

	_, err := registry.Get(context.Background(), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corp")
}
