package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/realmsync/realmsync/pkg/identity/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDatabaseDefaults(&cfg.Database)
	applySyncDefaults(&cfg.Sync)
	applyDirectoryDefaults(&cfg.Directory)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyDatabaseDefaults sets identity store database defaults.
func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

// applySyncDefaults sets scheduling and timing defaults.
func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = time.Hour
	}
	if cfg.HolderID == "" {
		hostname, _ := os.Hostname()
		cfg.HolderID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
}

// applyDirectoryDefaults sets directory client defaults.
func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.Krb5ConfPath == "" {
		cfg.Krb5ConfPath = "/etc/krb5.conf"
	}
	// TmpDir has no default here; the connection registry falls back to the
	// system temp directory when empty.
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
