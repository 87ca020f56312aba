package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("DefaultConfig() does not validate: %v", err)
	}
	if cfg.Confidence.BumpScale != 0.05 {
		t.Errorf("BumpScale = %g, want 0.05", cfg.Confidence.BumpScale)
	}
	if cfg.Confidence.BumpClamp != 0.15 {
		t.Errorf("BumpClamp = %g, want 0.15", cfg.Confidence.BumpClamp)
	}
	if cfg.Learning.LearningRate != 0.2 {
		t.Errorf("LearningRate = %g, want 0.2", cfg.Learning.LearningRate)
	}
	if !cfg.Executor.DryRun {
		t.Error("DryRun should default to true")
	}
	if cfg.Executor.AllowActions {
		t.Error("AllowActions should default to false")
	}
	if cfg.Pipeline.MinWindow != 24*time.Hour {
		t.Errorf("MinWindow = %v, want 24h", cfg.Pipeline.MinWindow)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
policy:
  path: policies/
pipeline:
  strategy: stump
  min_examples: 10
executor:
  enforcement_mode: abort
  dry_run: false
  allow_actions: true
telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Storage.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Pipeline.Strategy != "stump" {
		t.Errorf("Strategy = %q, want stump", cfg.Pipeline.Strategy)
	}
	if cfg.Pipeline.MinExamples != 10 {
		t.Errorf("MinExamples = %d, want 10", cfg.Pipeline.MinExamples)
	}
	if cfg.Executor.DryRun {
		t.Error("explicit dry_run: false was not honored")
	}
	if !cfg.Executor.AllowActions {
		t.Error("explicit allow_actions: true was not honored")
	}

	// Defaults still fill unset sections.
	if cfg.Confidence.RiskOverride != 0.95 {
		t.Errorf("RiskOverride = %g, want default 0.95", cfg.Confidence.RiskOverride)
	}
	if cfg.Pipeline.Schedule != "0 2 * * *" {
		t.Errorf("Schedule = %q, want default", cfg.Pipeline.Schedule)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad backend", "storage:\n  backend: dynamo\n"},
		{"bad strategy", "pipeline:\n  strategy: forest\n"},
		{"bad enforcement mode", "executor:\n  enforcement_mode: panic\n"},
		{"bad cron", "pipeline:\n  schedule: whenever\n"},
		{"http provider without url", "provider:\n  type: http\n"},
		{"bad log level", "telemetry:\n  logging:\n    level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() accepted invalid configuration")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")

	t.Setenv("GANYMEDE_STORAGE_DB_PATH", "/tmp/override.db")
	t.Setenv("GANYMEDE_EXECUTOR_ALLOW_ACTIONS", "true")
	t.Setenv("GANYMEDE_EXECUTOR_DRY_RUN", "false")
	t.Setenv("GANYMEDE_LOG_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Storage.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q, want /tmp/override.db", cfg.Storage.DBPath)
	}
	if !cfg.Executor.AllowActions || cfg.Executor.DryRun {
		t.Errorf("executor overrides not applied: %+v", cfg.Executor)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Telemetry.Logging.Level)
	}
}
