package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/realmsync/realmsync/pkg/identity/store"
)

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no config file should succeed, got: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Sync.Interval != 30*time.Minute {
		t.Errorf("Expected default sync interval 30m, got %v", cfg.Sync.Interval)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Expected default database type sqlite, got %q", cfg.Database.Type)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
sync:
  interval: 5m
  task_timeout: 10m
  holder_id: worker-1
directory:
  krb5_conf: /opt/krb5/krb5.conf
metrics:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format json, got %q", cfg.Logging.Format)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Expected interval 5m, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.TaskTimeout != 10*time.Minute {
		t.Errorf("Expected task timeout 10m, got %v", cfg.Sync.TaskTimeout)
	}
	if cfg.Sync.HolderID != "worker-1" {
		t.Errorf("Expected holder worker-1, got %q", cfg.Sync.HolderID)
	}
	if cfg.Directory.Krb5ConfPath != "/opt/krb5/krb5.conf" {
		t.Errorf("Expected custom krb5.conf path, got %q", cfg.Directory.Krb5ConfPath)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled")
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: TRACE\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Sync.HolderID = "worker-7"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config failed: %v", err)
	}
	if loaded.Sync.HolderID != "worker-7" {
		t.Errorf("Expected holder worker-7, got %q", loaded.Sync.HolderID)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestApplyDefaults_HolderID(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Sync.HolderID == "" {
		t.Error("Expected a generated holder id")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.Sync.TaskTimeout != time.Hour {
		t.Errorf("Expected default task timeout 1h, got %v", cfg.Sync.TaskTimeout)
	}
	if cfg.Directory.Krb5ConfPath != "/etc/krb5.conf" {
		t.Errorf("Expected default krb5.conf path, got %q", cfg.Directory.Krb5ConfPath)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}
