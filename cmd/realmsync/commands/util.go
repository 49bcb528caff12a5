package commands

import (
	"fmt"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/config"
	"github.com/realmsync/realmsync/pkg/events"
	"github.com/realmsync/realmsync/pkg/identity/store"
	"github.com/realmsync/realmsync/pkg/metrics"
	"github.com/realmsync/realmsync/pkg/status"
	"github.com/realmsync/realmsync/pkg/sync"

	// Import prometheus metrics to register init() functions
	_ "github.com/realmsync/realmsync/pkg/metrics/prometheus"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// runtimeComponents bundles the wired sync machinery shared by the serve,
// sync, and check commands.
type runtimeComponents struct {
	Store    *store.GORMStore
	Registry *sync.Registry
	Engine   *sync.Engine
	Statuses *status.Cache
}

// Close releases the store and all cached directory connections.
func (rc *runtimeComponents) Close() {
	if err := rc.Registry.Close(); err != nil {
		logger.Warn("Failed to close directory connections", logger.KeyError, err)
	}
	if err := rc.Store.Close(); err != nil {
		logger.Warn("Failed to close identity store", logger.KeyError, err)
	}
}

// buildRuntime wires the identity store, connection registry, and sync
// engine from configuration.
func buildRuntime(cfg *config.Config) (*runtimeComponents, error) {
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity store: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	registry := sync.NewRegistry(
		sync.KadminDialerFactory(cfg.Directory.Krb5ConfPath),
		cfg.Directory.TmpDir,
	)
	statuses := status.NewCache()

	engine, err := sync.NewEngine(sync.Options{
		Store:    st,
		Leases:   st,
		Registry: registry,
		Events:   events.LogSink{},
		Statuses: statuses,
		Metrics:  metrics.NewSyncMetrics(),
		Config: sync.Config{
			TaskTimeout: cfg.Sync.TaskTimeout,
			HolderID:    cfg.Sync.HolderID,
		},
	})
	if err != nil {
		_ = registry.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to build sync engine: %w", err)
	}

	return &runtimeComponents{
		Store:    st,
		Registry: registry,
		Engine:   engine,
		Statuses: statuses,
	}, nil
}
