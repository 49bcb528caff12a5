package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/config"
	"github.com/realmsync/realmsync/pkg/metrics"
	"github.com/realmsync/realmsync/pkg/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync worker",
	Long: `Run the realmsync worker in the foreground.

The worker syncs every enabled realm source immediately, then again on the
configured interval. Several workers may share a PostgreSQL identity store;
the per-source sync lease keeps them from working the same source at once.

Examples:
  # Run with the default config
  realmsync serve

  # Run with a custom config file
  realmsync serve --config /etc/realmsync/config.yaml

  # Run with environment variable overrides
  REALMSYNC_LOGGING_LEVEL=DEBUG realmsync serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	logger.Info("realmsync worker starting",
		"version", Version,
		"database", string(cfg.Database.Type),
		logger.KeyHolder, cfg.Sync.HolderID)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsHandler(),
		}
		go func() {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", logger.KeyError, err)
			}
		}()
	}

	scheduler := sync.NewScheduler(rc.Engine, rc.Store, cfg.Sync.Interval)
	err = scheduler.Run(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown error", logger.KeyError, err)
		}
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("realmsync worker stopped")
		return nil
	}
	return err
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
