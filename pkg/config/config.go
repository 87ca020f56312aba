package config

import "time"

// Config is the root configuration structure for Ganymede. It contains
// all configuration sections for storage, the policy source, confidence
// estimation, learning, the nightly pipeline, the agent executor,
// telemetry, and the admin server.
type Config struct {
	// Storage configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Policy configures where operator-authored policies are loaded from.
	Policy PolicyConfig `yaml:"policy"`

	// Provider configures the entity/action provider integration.
	Provider ProviderConfig `yaml:"provider"`

	// Confidence configures the confidence estimator.
	Confidence ConfidenceConfig `yaml:"confidence"`

	// Learning configures the online learner and stats tracking.
	Learning LearningConfig `yaml:"learning"`

	// Pipeline configures the nightly active-learning pipeline.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Executor configures unit-of-work budgets and action gating.
	Executor ExecutorConfig `yaml:"executor"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures the admin HTTP server (metrics, health).
	Server ServerConfig `yaml:"server"`
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	// Backend selects the storage implementation: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// DBPath is the SQLite database file path.
	// Default: "ganymede.db"
	DBPath string `yaml:"db_path"`

	// BusyTimeout is how long SQLite waits for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// SnapshotInterval is how often the WAL is checkpointed.
	// Default: 5m
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// PolicyConfig configures the policy source.
type PolicyConfig struct {
	// Path is a YAML policy file or a directory of .yaml/.yml files.
	Path string `yaml:"path"`

	// Watch enables hot reload of the policy path via fsnotify.
	// Default: false
	Watch bool `yaml:"watch"`
}

// ProviderConfig configures the entity/action provider.
type ProviderConfig struct {
	// Type selects the provider implementation: "mock" or "http".
	// Default: "mock"
	Type string `yaml:"type"`

	// BaseURL is the base URL of the HTTP provider.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-call HTTP timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// ConfidenceConfig configures the confidence estimator. The numeric
// values are empirical tuning constants; they are configuration, not
// invariants.
type ConfidenceConfig struct {
	// BumpScale scales the summed user weights into the personalized
	// bump before clamping.
	// Default: 0.05
	BumpScale float64 `yaml:"bump_scale"`

	// BumpClamp bounds the personalized bump to [-BumpClamp, +BumpClamp].
	// Only the bump contribution is clamped; stored weights are unbounded.
	// Default: 0.15
	BumpClamp float64 `yaml:"bump_clamp"`

	// BulkBoost is added when the entity's category is a high-volume
	// low-stakes category and its aggregate ratio exceeds BulkRatio.
	// Default: 0.10
	BulkBoost float64 `yaml:"bulk_boost"`

	// BulkRatio is the aggregate-ratio threshold for BulkBoost.
	// Default: 0.6
	BulkRatio float64 `yaml:"bulk_ratio"`

	// BulkCategories are the high-volume low-stakes categories eligible
	// for BulkBoost.
	// Default: ["promo", "newsletter", "social"]
	BulkCategories []string `yaml:"bulk_categories"`

	// RiskOverride is the confidence forced when the entity's risk score
	// reaches RiskThreshold. The override bypasses the personalized bump.
	// Default: 0.95
	RiskOverride float64 `yaml:"risk_override"`

	// RiskThreshold is the risk score at which RiskOverride applies.
	// Default: 80
	RiskThreshold float64 `yaml:"risk_threshold"`

	// Tokens overrides the fixed contains:<token> vocabulary.
	// Default: the features package default set.
	Tokens []string `yaml:"tokens"`
}

// LearningConfig configures the online learner.
type LearningConfig struct {
	// LearningRate is the per-feedback weight step (η).
	// Default: 0.2
	LearningRate float64 `yaml:"learning_rate"`

	// WindowDays is the stats window recorded on policy stats rows.
	// Default: 30
	WindowDays int `yaml:"window_days"`
}

// PipelineConfig configures the nightly active-learning pipeline.
type PipelineConfig struct {
	// Schedule is the cron expression for the nightly run.
	// Default: "0 2 * * *"
	Schedule string `yaml:"schedule"`

	// Agents lists the agents the pipeline processes.
	Agents []string `yaml:"agents"`

	// MinExamples is the minimum labeled-example count per agent below
	// which the trainer declines to produce a bundle.
	// Default: 50
	MinExamples int `yaml:"min_examples"`

	// Strategy selects the trainer: "logistic" or "stump".
	// Default: "logistic"
	Strategy string `yaml:"strategy"`

	// InitialCanaryPercent is the traffic share a freshly applied bundle
	// receives.
	// Default: 10
	InitialCanaryPercent int `yaml:"initial_canary_percent"`

	// PromoteGain is the sustained quality gain required to step a
	// canary forward.
	// Default: 0.02
	PromoteGain float64 `yaml:"promote_gain"`

	// RollbackDrop is the quality drop that triggers immediate rollback.
	// Default: 0.05
	RollbackDrop float64 `yaml:"rollback_drop"`

	// MinWindow is the minimum monitoring window before the guard acts
	// on a canary.
	// Default: 24h
	MinWindow time.Duration `yaml:"min_window"`

	// SampleSize is the number of uncertain predictions queued for
	// review per agent.
	// Default: 20
	SampleSize int `yaml:"sample_size"`

	// SamplerStrategy selects uncertainty scoring: "low_confidence",
	// "entropy", or "variance".
	// Default: "low_confidence"
	SamplerStrategy string `yaml:"sampler_strategy"`

	// JudgeHalfLife is the exponential decay half-life applied to judge
	// agreement history.
	// Default: 168h (7 days)
	JudgeHalfLife time.Duration `yaml:"judge_half_life"`

	// GoldConfidence, ApprovalConfidence and FeedbackConfidence are the
	// per-source confidences assigned to ingested labeled examples.
	// Defaults: 1.0, 0.9, 0.7
	GoldConfidence     float64 `yaml:"gold_confidence"`
	ApprovalConfidence float64 `yaml:"approval_confidence"`
	FeedbackConfidence float64 `yaml:"feedback_confidence"`
}

// ExecutorConfig configures the agent executor.
type ExecutorConfig struct {
	// BudgetMS is the elapsed-time budget per unit of work in
	// milliseconds. Zero means no time budget.
	// Default: 30000
	BudgetMS int64 `yaml:"budget_ms"`

	// BudgetOps is the provider-operation budget per unit of work.
	// Zero means no operation budget.
	// Default: 1000
	BudgetOps int64 `yaml:"budget_ops"`

	// EnforcementMode controls budget overruns: "warn" logs and lets the
	// run complete; "abort" stops the run with a budget error.
	// Default: "warn"
	EnforcementMode string `yaml:"enforcement_mode"`

	// DryRun disables all provider mutations when true.
	// Default: true
	DryRun bool `yaml:"dry_run"`

	// AllowActions must be true, in addition to DryRun being false, for
	// any provider mutation to be reachable.
	// Default: false
	AllowActions bool `yaml:"allow_actions"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are registered and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the prometheus metric namespace.
	// Default: "ganymede"
	Namespace string `yaml:"namespace"`

	// Subsystem is the prometheus metric subsystem (optional).
	Subsystem string `yaml:"subsystem"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is the address for /metrics and /healthz.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the graceful shutdown deadline.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}
