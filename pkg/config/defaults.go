package config

import "time"

// ApplyDefaults fills in default values for any zero-valued fields.
// Booleans with a true default are not defaulted here; they are set in
// DefaultConfig so that an explicit false in YAML survives loading.
func ApplyDefaults(cfg *Config) {
	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "ganymede.db"
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}
	if cfg.Storage.SnapshotInterval == 0 {
		cfg.Storage.SnapshotInterval = 5 * time.Minute
	}

	// Provider
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "mock"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 10 * time.Second
	}

	// Confidence
	if cfg.Confidence.BumpScale == 0 {
		cfg.Confidence.BumpScale = 0.05
	}
	if cfg.Confidence.BumpClamp == 0 {
		cfg.Confidence.BumpClamp = 0.15
	}
	if cfg.Confidence.BulkBoost == 0 {
		cfg.Confidence.BulkBoost = 0.10
	}
	if cfg.Confidence.BulkRatio == 0 {
		cfg.Confidence.BulkRatio = 0.6
	}
	if len(cfg.Confidence.BulkCategories) == 0 {
		cfg.Confidence.BulkCategories = []string{"promo", "newsletter", "social"}
	}
	if cfg.Confidence.RiskOverride == 0 {
		cfg.Confidence.RiskOverride = 0.95
	}
	if cfg.Confidence.RiskThreshold == 0 {
		cfg.Confidence.RiskThreshold = 80
	}

	// Learning
	if cfg.Learning.LearningRate == 0 {
		cfg.Learning.LearningRate = 0.2
	}
	if cfg.Learning.WindowDays == 0 {
		cfg.Learning.WindowDays = 30
	}

	// Pipeline
	if cfg.Pipeline.Schedule == "" {
		cfg.Pipeline.Schedule = "0 2 * * *"
	}
	if cfg.Pipeline.MinExamples == 0 {
		cfg.Pipeline.MinExamples = 50
	}
	if cfg.Pipeline.Strategy == "" {
		cfg.Pipeline.Strategy = "logistic"
	}
	if cfg.Pipeline.InitialCanaryPercent == 0 {
		cfg.Pipeline.InitialCanaryPercent = 10
	}
	if cfg.Pipeline.PromoteGain == 0 {
		cfg.Pipeline.PromoteGain = 0.02
	}
	if cfg.Pipeline.RollbackDrop == 0 {
		cfg.Pipeline.RollbackDrop = 0.05
	}
	if cfg.Pipeline.MinWindow == 0 {
		cfg.Pipeline.MinWindow = 24 * time.Hour
	}
	if cfg.Pipeline.SampleSize == 0 {
		cfg.Pipeline.SampleSize = 20
	}
	if cfg.Pipeline.SamplerStrategy == "" {
		cfg.Pipeline.SamplerStrategy = "low_confidence"
	}
	if cfg.Pipeline.JudgeHalfLife == 0 {
		cfg.Pipeline.JudgeHalfLife = 7 * 24 * time.Hour
	}
	if cfg.Pipeline.GoldConfidence == 0 {
		cfg.Pipeline.GoldConfidence = 1.0
	}
	if cfg.Pipeline.ApprovalConfidence == 0 {
		cfg.Pipeline.ApprovalConfidence = 0.9
	}
	if cfg.Pipeline.FeedbackConfidence == 0 {
		cfg.Pipeline.FeedbackConfidence = 0.7
	}

	// Executor
	if cfg.Executor.BudgetMS == 0 {
		cfg.Executor.BudgetMS = 30000
	}
	if cfg.Executor.BudgetOps == 0 {
		cfg.Executor.BudgetOps = 1000
	}
	if cfg.Executor.EnforcementMode == "" {
		cfg.Executor.EnforcementMode = "warn"
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "ganymede"
	}

	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:9464"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
}

// DefaultConfig returns a configuration with every default applied,
// including the true-by-default booleans.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Executor.DryRun = true
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
