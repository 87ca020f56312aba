package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid or inconsistent values.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend must be \"sqlite\" or \"memory\", got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required for the sqlite backend")
	}

	switch cfg.Provider.Type {
	case "mock", "http":
	default:
		return fmt.Errorf("provider.type must be \"mock\" or \"http\", got %q", cfg.Provider.Type)
	}
	if cfg.Provider.Type == "http" && cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required for the http provider")
	}

	if cfg.Confidence.BumpScale < 0 {
		return fmt.Errorf("confidence.bump_scale must not be negative, got %g", cfg.Confidence.BumpScale)
	}
	if cfg.Confidence.BumpClamp < 0 {
		return fmt.Errorf("confidence.bump_clamp must not be negative, got %g", cfg.Confidence.BumpClamp)
	}
	if cfg.Confidence.RiskOverride < 0 || cfg.Confidence.RiskOverride > 1 {
		return fmt.Errorf("confidence.risk_override must be in [0, 1], got %g", cfg.Confidence.RiskOverride)
	}
	if cfg.Confidence.BulkRatio < 0 || cfg.Confidence.BulkRatio > 1 {
		return fmt.Errorf("confidence.bulk_ratio must be in [0, 1], got %g", cfg.Confidence.BulkRatio)
	}

	if cfg.Learning.LearningRate <= 0 {
		return fmt.Errorf("learning.learning_rate must be positive, got %g", cfg.Learning.LearningRate)
	}

	if _, err := cron.ParseStandard(cfg.Pipeline.Schedule); err != nil {
		return fmt.Errorf("pipeline.schedule is not a valid cron expression %q: %w", cfg.Pipeline.Schedule, err)
	}
	if cfg.Pipeline.MinExamples < 1 {
		return fmt.Errorf("pipeline.min_examples must be at least 1, got %d", cfg.Pipeline.MinExamples)
	}
	switch cfg.Pipeline.Strategy {
	case "logistic", "stump":
	default:
		return fmt.Errorf("pipeline.strategy must be \"logistic\" or \"stump\", got %q", cfg.Pipeline.Strategy)
	}
	if cfg.Pipeline.InitialCanaryPercent < 1 || cfg.Pipeline.InitialCanaryPercent > 100 {
		return fmt.Errorf("pipeline.initial_canary_percent must be in [1, 100], got %d", cfg.Pipeline.InitialCanaryPercent)
	}
	switch cfg.Pipeline.SamplerStrategy {
	case "low_confidence", "entropy", "variance":
	default:
		return fmt.Errorf("pipeline.sampler_strategy must be \"low_confidence\", \"entropy\" or \"variance\", got %q", cfg.Pipeline.SamplerStrategy)
	}

	switch cfg.Executor.EnforcementMode {
	case "warn", "abort":
	default:
		return fmt.Errorf("executor.enforcement_mode must be \"warn\" or \"abort\", got %q", cfg.Executor.EnforcementMode)
	}
	if cfg.Executor.BudgetMS < 0 {
		return fmt.Errorf("executor.budget_ms must not be negative, got %d", cfg.Executor.BudgetMS)
	}
	if cfg.Executor.BudgetOps < 0 {
		return fmt.Errorf("executor.budget_ops must not be negative, got %d", cfg.Executor.BudgetOps)
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error; got %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be \"json\" or \"text\", got %q", cfg.Telemetry.Logging.Format)
	}

	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	return nil
}
