package sync

import (
	"fmt"
	"os"
	"sync"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// Krb5ConfEnv is the process-wide slot the directory client reads its
// configuration from at connection-construction time.
const Krb5ConfEnv = "KRB5_CONFIG"

// ambientMu serializes ambient-config scopes across the process. The slot
// is a single global: without this, a run for one realm could observe
// another realm's configuration.
var ambientMu sync.Mutex

// WithAmbientConfig runs fn with the source's custom krb5.conf applied
// through the ambient configuration slot. Every scope takes the mutex, blob
// or not: the directory client reads the slot at connection-construction
// time, so a source without a blob must still never dial while another
// source's override is in the slot. The previous slot value is restored (or
// unset if none existed) on every exit path, and the materialized file is
// removed.
func WithAmbientConfig(source *models.RealmSource, fn func() error) error {
	ambientMu.Lock()
	defer ambientMu.Unlock()

	if source.Krb5Conf == "" {
		return fn()
	}

	f, err := os.CreateTemp("", "realmsync-krb5-*.conf")
	if err != nil {
		return fmt.Errorf("materialize krb5.conf: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(source.Krb5Conf); err != nil {
		f.Close()
		return fmt.Errorf("materialize krb5.conf: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("materialize krb5.conf: %w", err)
	}

	prev, hadPrev := os.LookupEnv(Krb5ConfEnv)
	if err := os.Setenv(Krb5ConfEnv, path); err != nil {
		return fmt.Errorf("set %s: %w", Krb5ConfEnv, err)
	}
	defer func() {
		if hadPrev {
			os.Setenv(Krb5ConfEnv, prev)
		} else {
			os.Unsetenv(Krb5ConfEnv)
		}
	}()

	return fn()
}
