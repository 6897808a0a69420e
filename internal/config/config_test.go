package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(natsURLEnv, "")
	t.Setenv(llmAPIKeyEnv, "")
	t.Setenv(llmModelEnv, "")
	t.Setenv(listenAddrEnv, "")

	cfg := Load()

	if cfg.Scheduler.TickInterval.Std() != 15*time.Second {
		t.Fatalf("unexpected tick interval: %v", cfg.Scheduler.TickInterval.Std())
	}
	if cfg.Pipeline.StageRetries == nil || *cfg.Pipeline.StageRetries != 2 {
		t.Fatalf("unexpected stage retries: %v", cfg.Pipeline.StageRetries)
	}
	if cfg.Alerts.DefaultThreshold != 5 {
		t.Fatalf("unexpected default threshold: %d", cfg.Alerts.DefaultThreshold)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if len(cfg.Sources) == 0 {
		t.Fatalf("expected a default source site")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
server:
  addr: ":9090"
scheduler:
  tickInterval: 5s
  workers: 8
alerts:
  similarityCutoff: 0.9
logging:
  format: json
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(listenAddrEnv, "")

	cfg := Load()

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("file addr not applied: %s", cfg.Server.Addr)
	}
	if cfg.Scheduler.TickInterval.Std() != 5*time.Second {
		t.Fatalf("file tick interval not applied: %v", cfg.Scheduler.TickInterval.Std())
	}
	if cfg.Scheduler.Workers != 8 {
		t.Fatalf("file workers not applied: %d", cfg.Scheduler.Workers)
	}
	if cfg.Alerts.SimilarityCutoff != 0.9 {
		t.Fatalf("file cutoff not applied: %f", cfg.Alerts.SimilarityCutoff)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("file log format not applied: %s", cfg.Logging.Format)
	}

	// Untouched sections keep their defaults.
	if cfg.Scheduler.MaxFailures != 5 {
		t.Fatalf("default max failures lost: %d", cfg.Scheduler.MaxFailures)
	}
	if cfg.Pipeline.TargetSources != 10 {
		t.Fatalf("default target sources lost: %d", cfg.Pipeline.TargetSources)
	}
}

func TestZeroStageRetriesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  stageRetries: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(listenAddrEnv, "")

	cfg := Load()

	// An explicit zero must not be mistaken for unset.
	if cfg.Pipeline.StageRetries == nil || *cfg.Pipeline.StageRetries != 0 {
		t.Fatalf("explicit zero retries not applied: %v", cfg.Pipeline.StageRetries)
	}
	if cfg.Pipeline.TargetSources != 10 {
		t.Fatalf("default target sources lost: %d", cfg.Pipeline.TargetSources)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  dsn: postgres://file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env")
	t.Setenv(listenAddrEnv, ":7070")

	cfg := Load()

	if cfg.Database.DSN != "postgres://env" {
		t.Fatalf("env DSN should win, got %s", cfg.Database.DSN)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env addr should win, got %s", cfg.Server.Addr)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	var v struct {
		D Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte("d: 90s"), &v); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if v.D.Std() != 90*time.Second {
		t.Fatalf("expected 90s, got %v", v.D.Std())
	}

	if err := yaml.Unmarshal([]byte("d: ninety"), &v); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}
