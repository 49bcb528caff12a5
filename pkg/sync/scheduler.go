package sync

import (
	"context"
	"sync"
	"time"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

// SourceLister enumerates the sources eligible for scheduled sync,
// implemented by pkg/identity/store.
type SourceLister interface {
	ListSyncableSources(ctx context.Context) ([]*models.RealmSource, error)
}

// DefaultSyncInterval is how often the scheduler wakes up when not
// configured otherwise.
const DefaultSyncInterval = 30 * time.Minute

// Scheduler periodically runs the sync engine over every enabled source.
// Sources sync concurrently; the per-source lease keeps two schedulers
// (or a scheduler and a manual run) from working the same source at once.
type Scheduler struct {
	engine   *Engine
	sources  SourceLister
	interval time.Duration
}

// NewScheduler creates a scheduler. A non-positive interval falls back to
// DefaultSyncInterval.
func NewScheduler(engine *Engine, sources SourceLister, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{engine: engine, sources: sources, interval: interval}
}

// Run syncs all sources immediately, then on every interval tick until the
// context is cancelled. In-flight source syncs are waited for on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info("Sync scheduler started", logger.KeyDuration, s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sync scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every syncable source once, concurrently, and returns when
// all runs have finished.
func (s *Scheduler) RunOnce(ctx context.Context) {
	sources, err := s.sources.ListSyncableSources(ctx)
	if err != nil {
		logger.Warn("Failed to list syncable sources", logger.KeyError, err)
		return
	}
	if len(sources) == 0 {
		logger.Debug("No syncable sources configured")
		return
	}

	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(source *models.RealmSource) {
			defer wg.Done()
			if _, err := s.engine.Sync(ctx, source); err != nil {
				logger.Warn("Sync run failed",
					logger.KeySource, source.Slug, logger.KeyError, err)
			}
		}(source)
	}
	wg.Wait()
}
