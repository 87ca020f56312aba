package metrics

import (
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the nightly learning pipeline.
//
// Metrics:
//   - ganymede_pipeline_runs_total: Pipeline runs by agent and status
//   - ganymede_pipeline_stage_duration_seconds: Per-stage duration
//   - ganymede_examples_ingested_total: Labeled examples ingested by source
//   - ganymede_review_queue_size: Current review queue depth per agent
//   - ganymede_bundle_transitions_total: Bundle lifecycle transitions
//   - ganymede_canary_percent: Current canary traffic share per agent
type PipelineMetrics struct {
	runsTotal         *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	examplesIngested  *prometheus.CounterVec
	reviewQueueSize   *prometheus.GaugeVec
	bundleTransitions *prometheus.CounterVec
	canaryPercent     *prometheus.GaugeVec
}

// NewPipelineMetrics creates and registers pipeline metrics with the
// provided registry.
func NewPipelineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PipelineMetrics {
	pm := &PipelineMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pipeline_runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"agent", "status"},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),

		examplesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "examples_ingested_total",
				Help:      "Total number of labeled examples ingested",
			},
			[]string{"source"},
		),

		reviewQueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "review_queue_size",
				Help:      "Current number of items in the human review queue",
			},
			[]string{"agent"},
		),

		bundleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bundle_transitions_total",
				Help:      "Total number of configuration bundle transitions",
			},
			[]string{"agent", "transition"},
		),

		canaryPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "canary_percent",
				Help:      "Share of traffic routed to the canary bundle",
			},
			[]string{"agent"},
		),
	}

	registry.MustRegister(
		pm.runsTotal,
		pm.stageDuration,
		pm.examplesIngested,
		pm.reviewQueueSize,
		pm.bundleTransitions,
		pm.canaryPercent,
	)

	return pm
}

// RecordRun records a completed pipeline run ("success" or "error").
func (pm *PipelineMetrics) RecordRun(agent, status string) {
	pm.runsTotal.WithLabelValues(agent, status).Inc()
}

// RecordStage records the duration of one pipeline stage.
func (pm *PipelineMetrics) RecordStage(stage string, duration time.Duration) {
	pm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordIngested records labeled examples ingested from a source.
func (pm *PipelineMetrics) RecordIngested(source string, n int) {
	pm.examplesIngested.WithLabelValues(source).Add(float64(n))
}

// UpdateReviewQueueSize sets the current review queue depth for an agent.
func (pm *PipelineMetrics) UpdateReviewQueueSize(agent string, size int) {
	pm.reviewQueueSize.WithLabelValues(agent).Set(float64(size))
}

// RecordBundleTransition records a bundle lifecycle transition
// ("created", "canary", "promoted", "rolled_back").
func (pm *PipelineMetrics) RecordBundleTransition(agent, transition string) {
	pm.bundleTransitions.WithLabelValues(agent, transition).Inc()
}

// UpdateCanaryPercent sets the current canary traffic share for an agent.
func (pm *PipelineMetrics) UpdateCanaryPercent(agent string, percent int) {
	pm.canaryPercent.WithLabelValues(agent).Set(float64(percent))
}
