package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path,
// applies defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	cfg.Executor.DryRun = true
	cfg.Telemetry.Metrics.Enabled = true

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention GANYMEDE_SECTION_FIELD (e.g. GANYMEDE_STORAGE_DB_PATH) and
// always take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	// Storage
	if val := os.Getenv("GANYMEDE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("GANYMEDE_STORAGE_DB_PATH"); val != "" {
		cfg.Storage.DBPath = val
	}

	// Policy
	if val := os.Getenv("GANYMEDE_POLICY_PATH"); val != "" {
		cfg.Policy.Path = val
	}
	if val := os.Getenv("GANYMEDE_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	// Provider
	if val := os.Getenv("GANYMEDE_PROVIDER_TYPE"); val != "" {
		cfg.Provider.Type = val
	}
	if val := os.Getenv("GANYMEDE_PROVIDER_BASE_URL"); val != "" {
		cfg.Provider.BaseURL = val
	}
	if val := os.Getenv("GANYMEDE_PROVIDER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Provider.Timeout = d
		}
	}

	// Pipeline
	if val := os.Getenv("GANYMEDE_PIPELINE_SCHEDULE"); val != "" {
		cfg.Pipeline.Schedule = val
	}
	if val := os.Getenv("GANYMEDE_PIPELINE_STRATEGY"); val != "" {
		cfg.Pipeline.Strategy = val
	}

	// Executor
	if val := os.Getenv("GANYMEDE_EXECUTOR_DRY_RUN"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Executor.DryRun = b
		}
	}
	if val := os.Getenv("GANYMEDE_EXECUTOR_ALLOW_ACTIONS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Executor.AllowActions = b
		}
	}
	if val := os.Getenv("GANYMEDE_EXECUTOR_ENFORCEMENT_MODE"); val != "" {
		cfg.Executor.EnforcementMode = val
	}
	if val := os.Getenv("GANYMEDE_EXECUTOR_BUDGET_MS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Executor.BudgetMS = n
		}
	}
	if val := os.Getenv("GANYMEDE_EXECUTOR_BUDGET_OPS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Executor.BudgetOps = n
		}
	}

	// Telemetry
	if val := os.Getenv("GANYMEDE_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}

	// Server
	if val := os.Getenv("GANYMEDE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
}
