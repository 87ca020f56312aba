package metrics

import (
	"net/http"
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Prometheus registry and fans recording calls out to
// the metric subsystems. All recording methods are no-ops when metrics
// are disabled, so callers never guard on configuration.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decision *DecisionMetrics
	pipeline *PipelineMetrics
}

// NewCollector creates a collector with the specified configuration and
// registry. If registry is nil, a fresh registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "ganymede"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}
	c.decision = NewDecisionMetrics(cfg, registry)
	c.pipeline = NewPipelineMetrics(cfg, registry)
	return c
}

// RecordProposal records a created proposal.
func (c *Collector) RecordProposal(policyID, action string, confidence float64) {
	if !c.config.Enabled {
		return
	}
	c.decision.RecordProposal(policyID, action, confidence)
}

// RecordDecision records a human decision on a proposal.
func (c *Collector) RecordDecision(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.decision.RecordDecision(outcome)
}

// RecordConflict records a decision lost to a concurrent decider.
func (c *Collector) RecordConflict() {
	if !c.config.Enabled {
		return
	}
	c.decision.RecordConflict()
}

// RecordExecution records a provider execution.
func (c *Collector) RecordExecution(action, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.decision.RecordExecution(action, outcome, duration)
}

// RecordLearnerUpdate records an online weight update.
func (c *Collector) RecordLearnerUpdate(label string) {
	if !c.config.Enabled {
		return
	}
	c.decision.RecordLearnerUpdate(label)
}

// RecordPipelineRun records a completed pipeline run.
func (c *Collector) RecordPipelineRun(agent, status string) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordRun(agent, status)
}

// RecordPipelineStage records the duration of one pipeline stage.
func (c *Collector) RecordPipelineStage(stage string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordStage(stage, duration)
}

// RecordIngested records labeled examples ingested from a source.
func (c *Collector) RecordIngested(source string, n int) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordIngested(source, n)
}

// UpdateReviewQueueSize sets the review queue depth for an agent.
func (c *Collector) UpdateReviewQueueSize(agent string, size int) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.UpdateReviewQueueSize(agent, size)
}

// RecordBundleTransition records a bundle lifecycle transition.
func (c *Collector) RecordBundleTransition(agent, transition string) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordBundleTransition(agent, transition)
}

// UpdateCanaryPercent sets the canary traffic share for an agent.
func (c *Collector) UpdateCanaryPercent(agent string, percent int) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.UpdateCanaryPercent(agent, percent)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
