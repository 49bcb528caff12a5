package sync

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

const testKrb5Conf = "[libdefaults]\n  default_realm = CORP.EXAMPLE\n"

func TestWithAmbientConfigNoBlob(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "/etc/krb5.conf")

	source := &models.RealmSource{Realm: "CORP.EXAMPLE"}
	err := WithAmbientConfig(source, func() error {
		assert.Equal(t, "/etc/krb5.conf", os.Getenv(Krb5ConfEnv))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/etc/krb5.conf", os.Getenv(Krb5ConfEnv))
}

func TestWithAmbientConfigAppliesAndRestores(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "/etc/krb5.conf")

	source := &models.RealmSource{Realm: "CORP.EXAMPLE", Krb5Conf: testKrb5Conf}
	var applied string
	err := WithAmbientConfig(source, func() error {
		applied = os.Getenv(Krb5ConfEnv)
		data, err := os.ReadFile(applied)
		require.NoError(t, err)
		assert.Equal(t, testKrb5Conf, string(data))
		return nil
	})
	require.NoError(t, err)

	assert.NotEqual(t, "/etc/krb5.conf", applied)
	assert.Equal(t, "/etc/krb5.conf", os.Getenv(Krb5ConfEnv))
	_, statErr := os.Stat(applied)
	assert.True(t, os.IsNotExist(statErr), "materialized file must be removed")
}

func TestWithAmbientConfigRestoresUnsetSlot(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "placeholder")
	require.NoError(t, os.Unsetenv(Krb5ConfEnv))

	source := &models.RealmSource{Realm: "CORP.EXAMPLE", Krb5Conf: testKrb5Conf}
	err := WithAmbientConfig(source, func() error {
		assert.NotEmpty(t, os.Getenv(Krb5ConfEnv))
		return nil
	})
	require.NoError(t, err)

	_, present := os.LookupEnv(Krb5ConfEnv)
	assert.False(t, present, "slot must be unset again after the scope")
}

func TestWithAmbientConfigRestoresOnError(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "/etc/krb5.conf")

	boom := errors.New("sync failed")
	source := &models.RealmSource{Realm: "CORP.EXAMPLE", Krb5Conf: testKrb5Conf}
	err := WithAmbientConfig(source, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "/etc/krb5.conf", os.Getenv(Krb5ConfEnv))
}

func TestWithAmbientConfigSerializes(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "placeholder")
	require.NoError(t, os.Unsetenv(Krb5ConfEnv))

	a := &models.RealmSource{Realm: "A.EXAMPLE", Krb5Conf: "[libdefaults]\n  default_realm = A.EXAMPLE\n"}
	b := &models.RealmSource{Realm: "B.EXAMPLE", Krb5Conf: "[libdefaults]\n  default_realm = B.EXAMPLE\n"}

	done := make(chan error, 2)
	run := func(source *models.RealmSource) {
		done <- WithAmbientConfig(source, func() error {
			data, err := os.ReadFile(os.Getenv(Krb5ConfEnv))
			if err != nil {
				return err
			}
			if string(data) != source.Krb5Conf {
				return errors.New("observed another source's configuration")
			}
			return nil
		})
	}
	go run(a)
	go run(b)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestWithAmbientConfigSerializesUnscopedSources(t *testing.T) {
	t.Setenv(Krb5ConfEnv, "placeholder")
	require.NoError(t, os.Unsetenv(Krb5ConfEnv))

	blob := &models.RealmSource{Realm: "A.EXAMPLE", Krb5Conf: testKrb5Conf}
	plain := &models.RealmSource{Realm: "B.EXAMPLE"}

	entered := make(chan struct{})
	release := make(chan struct{})
	blobDone := make(chan error, 1)
	go func() {
		blobDone <- WithAmbientConfig(blob, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// The plain source dials through the same slot, so it must wait for the
	// blob source's scope to end even though it applies no override itself.
	plainSlot := make(chan string, 1)
	go func() {
		_ = WithAmbientConfig(plain, func() error {
			plainSlot <- os.Getenv(Krb5ConfEnv)
			return nil
		})
	}()

	select {
	case observed := <-plainSlot:
		t.Fatalf("source without an override ran inside another source's scope, slot = %q", observed)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-blobDone)
	assert.Empty(t, <-plainSlot)
}

func TestLeaseName(t *testing.T) {
	source := &models.RealmSource{Slug: "corp-realm"}
	assert.Equal(t, "realmsync/sources/kerberos/sync/corp-realm", LeaseName(source))
}
