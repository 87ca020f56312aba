package guard

import (
	"context"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/storage"
)

type stubQuality struct {
	byBundle map[string]float64
}

func (s *stubQuality) Quality(_ context.Context, _, bundleID string) (float64, error) {
	return s.byBundle[bundleID], nil
}

type fixture struct {
	store   *storage.MemoryStore
	manager *bundle.Manager
	quality *stubQuality
	guard   *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	manager := bundle.NewManager(store, 10, nil, nil)
	quality := &stubQuality{byBundle: make(map[string]float64)}
	g := NewGuard(manager, quality, config.PipelineConfig{
		PromoteGain:  0.02,
		RollbackDrop: 0.05,
		MinWindow:    24 * time.Hour,
	}, nil)
	return &fixture{store: store, manager: manager, quality: quality, guard: g}
}

// install walks a fresh bundle through created, proposed, approved and
// canary, then returns it.
func (f *fixture) install(t *testing.T, agent string) *bundle.Bundle {
	t.Helper()
	ctx := context.Background()
	b, err := f.manager.Create(ctx, agent, &bundle.Payload{Strategy: "logistic", ExampleCount: 100})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := f.manager.Propose(ctx, agent, b.ID); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err := f.manager.Approve(ctx, agent, b.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if err := f.manager.Apply(ctx, agent, b.ID); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return b
}

// installActive installs a bundle and promotes it to active, giving the
// agent a baseline.
func (f *fixture) installActive(t *testing.T, agent string) *bundle.Bundle {
	t.Helper()
	b := f.install(t, agent)
	if err := f.manager.Promote(context.Background(), agent); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	return b
}

// pastWindow makes the guard see every canary as outside its monitoring
// window.
func (f *fixture) pastWindow() {
	f.guard.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
}

func TestRunWithoutCanary(t *testing.T) {
	f := newFixture(t)
	decision, err := f.guard.Run(context.Background(), "email-triage")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionNone {
		t.Errorf("decision = %s, want %s", decision, DecisionNone)
	}
}

func TestRunWaitsInsideWindow(t *testing.T) {
	f := newFixture(t)
	f.install(t, "email-triage")

	decision, err := f.guard.Run(context.Background(), "email-triage")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionWait {
		t.Errorf("decision = %s, want %s", decision, DecisionWait)
	}
}

func TestRunRollsBackOnRegression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := f.installActive(t, "email-triage")
	canary := f.install(t, "email-triage")
	f.quality.byBundle[baseline.ID] = 0.80
	f.quality.byBundle[canary.ID] = 0.74 // 6% drop, past the 5% threshold
	f.pastWindow()

	decision, err := f.guard.Run(ctx, "email-triage")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionRollback {
		t.Fatalf("decision = %s, want %s", decision, DecisionRollback)
	}

	active, err := f.manager.Active(ctx, "email-triage")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active == nil || active.ID != baseline.ID {
		t.Errorf("active after rollback = %+v, want baseline %s", active, baseline.ID)
	}
	if c, _ := f.manager.Canary(ctx, "email-triage"); c != nil {
		t.Errorf("canary after rollback = %+v, want none", c)
	}

	audits, err := f.store.ListAudit(ctx, "agent/email-triage", 10)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(audits) != 1 || audits[0].Action != "bundle_rollback" || audits[0].Reason != "regression" {
		t.Errorf("audit trail = %+v, want one bundle_rollback with reason regression", audits)
	}
}

func TestRunStepsThenPromotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := f.installActive(t, "email-triage")
	canary := f.install(t, "email-triage")
	f.quality.byBundle[baseline.ID] = 0.80
	f.quality.byBundle[canary.ID] = 0.85
	f.pastWindow()

	decision, err := f.guard.Run(ctx, "email-triage")
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if decision != DecisionStep {
		t.Fatalf("first decision = %s, want %s", decision, DecisionStep)
	}
	if c, _ := f.manager.Canary(ctx, "email-triage"); c == nil || c.CanaryPercent != 50 {
		t.Fatalf("canary after step = %+v, want 50%%", c)
	}

	decision, err = f.guard.Run(ctx, "email-triage")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if decision != DecisionPromote {
		t.Fatalf("second decision = %s, want %s", decision, DecisionPromote)
	}

	active, err := f.manager.Active(ctx, "email-triage")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active == nil || active.ID != canary.ID {
		t.Errorf("active after promote = %+v, want canary %s", active, canary.ID)
	}
	if c, _ := f.manager.Canary(ctx, "email-triage"); c != nil {
		t.Errorf("canary after promote = %+v, want none", c)
	}
}

func TestRunHoldsInsideBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := f.installActive(t, "email-triage")
	canary := f.install(t, "email-triage")
	f.quality.byBundle[baseline.ID] = 0.80
	f.quality.byBundle[canary.ID] = 0.81 // inside both thresholds
	f.pastWindow()

	decision, err := f.guard.Run(ctx, "email-triage")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionHold {
		t.Errorf("decision = %s, want %s", decision, DecisionHold)
	}
	if c, _ := f.manager.Canary(ctx, "email-triage"); c == nil || c.CanaryPercent != 10 {
		t.Errorf("canary after hold = %+v, want unchanged at 10%%", c)
	}
}
