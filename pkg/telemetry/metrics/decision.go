package metrics

import (
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks the proposal and approval flow.
//
// Metrics:
//   - ganymede_proposals_created_total: Proposals created by policy and action
//   - ganymede_proposal_confidence: Confidence distribution of created proposals
//   - ganymede_decisions_total: Human decisions by outcome
//   - ganymede_decision_conflicts_total: Decisions lost to a concurrent decider
//   - ganymede_executions_total: Provider executions by outcome
//   - ganymede_learner_updates_total: Online weight updates by label
type DecisionMetrics struct {
	proposalsCreated   *prometheus.CounterVec
	proposalConfidence prometheus.Histogram
	decisionsTotal     *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	executionsTotal    *prometheus.CounterVec
	learnerUpdates     *prometheus.CounterVec
}

// NewDecisionMetrics creates and registers decision metrics with the
// provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		proposalsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proposals_created_total",
				Help:      "Total number of proposed actions created",
			},
			[]string{"policy_id", "action"},
		),

		proposalConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proposal_confidence",
				Help:      "Confidence of created proposals",
				Buckets:   prometheus.LinearBuckets(0.0, 0.1, 11),
			},
		),

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of human decisions on proposals",
			},
			[]string{"outcome"},
		),

		conflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_conflicts_total",
				Help:      "Total number of decisions lost to a concurrent decider",
			},
		),

		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of provider action executions",
			},
			[]string{"action", "outcome"},
		),

		learnerUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "learner_updates_total",
				Help:      "Total number of online weight updates",
			},
			[]string{"label"},
		),
	}

	registry.MustRegister(
		dm.proposalsCreated,
		dm.proposalConfidence,
		dm.decisionsTotal,
		dm.conflictsTotal,
		dm.executionsTotal,
		dm.learnerUpdates,
	)

	return dm
}

// RecordProposal records a created proposal and its confidence.
func (dm *DecisionMetrics) RecordProposal(policyID, action string, confidence float64) {
	dm.proposalsCreated.WithLabelValues(policyID, action).Inc()
	dm.proposalConfidence.Observe(confidence)
}

// RecordDecision records a human decision ("approved" or "rejected").
func (dm *DecisionMetrics) RecordDecision(outcome string) {
	dm.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordConflict records a decision that lost a concurrent race.
func (dm *DecisionMetrics) RecordConflict() {
	dm.conflictsTotal.Inc()
}

// RecordExecution records a provider execution and its outcome
// ("success" or "error").
func (dm *DecisionMetrics) RecordExecution(action, outcome string, _ time.Duration) {
	dm.executionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordLearnerUpdate records an online weight update ("approve" or
// "reject").
func (dm *DecisionMetrics) RecordLearnerUpdate(label string) {
	dm.learnerUpdates.WithLabelValues(label).Inc()
}
