package metrics

import (
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "metrics",
	}
}

func TestNewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)
	if collector == nil {
		t.Fatal("expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("collector registry not set correctly")
	}
}

func TestCollectorDefaultsNamespace(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)
	if cfg.Namespace != "ganymede" {
		t.Errorf("namespace = %q, want ganymede", cfg.Namespace)
	}
}

func TestRecordProposal(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordProposal("p1", "archive", 0.74)
	collector.RecordProposal("p1", "archive", 0.81)
	collector.RecordProposal("p2", "label", 0.55)

	got := testutil.ToFloat64(collector.decision.proposalsCreated.WithLabelValues("p1", "archive"))
	if got != 2 {
		t.Errorf("proposals_created_total{p1,archive} = %v, want 2", got)
	}
}

func TestRecordDecisionAndConflict(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordDecision("approved")
	collector.RecordDecision("approved")
	collector.RecordDecision("rejected")
	collector.RecordConflict()

	if got := testutil.ToFloat64(collector.decision.decisionsTotal.WithLabelValues("approved")); got != 2 {
		t.Errorf("decisions_total{approved} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.decision.conflictsTotal); got != 1 {
		t.Errorf("decision_conflicts_total = %v, want 1", got)
	}
}

func TestRecordExecution(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordExecution("archive", "success", 120*time.Millisecond)
	collector.RecordExecution("archive", "error", 30*time.Millisecond)

	if got := testutil.ToFloat64(collector.decision.executionsTotal.WithLabelValues("archive", "success")); got != 1 {
		t.Errorf("executions_total{archive,success} = %v, want 1", got)
	}
}

func TestPipelineMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordPipelineRun("email-triage", "success")
	collector.RecordPipelineStage("feed", 250*time.Millisecond)
	collector.RecordIngested("approval", 12)
	collector.UpdateReviewQueueSize("email-triage", 20)
	collector.RecordBundleTransition("email-triage", "canary")
	collector.UpdateCanaryPercent("email-triage", 10)

	if got := testutil.ToFloat64(collector.pipeline.runsTotal.WithLabelValues("email-triage", "success")); got != 1 {
		t.Errorf("pipeline_runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.pipeline.examplesIngested.WithLabelValues("approval")); got != 12 {
		t.Errorf("examples_ingested_total{approval} = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.pipeline.reviewQueueSize.WithLabelValues("email-triage")); got != 20 {
		t.Errorf("review_queue_size = %v, want 20", got)
	}
	if got := testutil.ToFloat64(collector.pipeline.canaryPercent.WithLabelValues("email-triage")); got != 10 {
		t.Errorf("canary_percent = %v, want 10", got)
	}
}

func TestDisabledCollectorIsNoop(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: false, Namespace: "test", Subsystem: "metrics"}
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordProposal("p1", "archive", 0.74)
	collector.RecordDecision("approved")
	collector.RecordPipelineRun("email-triage", "success")

	if got := testutil.ToFloat64(collector.decision.proposalsCreated.WithLabelValues("p1", "archive")); got != 0 {
		t.Errorf("disabled collector recorded proposals = %v, want 0", got)
	}
}
