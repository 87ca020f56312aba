package proposer

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/ganymede/pkg/confidence"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/features"
	"mercator-hq/ganymede/pkg/learning"
	"mercator-hq/ganymede/pkg/policy/ast"
	"mercator-hq/ganymede/pkg/policy/engine"
	"mercator-hq/ganymede/pkg/provider"
	"mercator-hq/ganymede/pkg/storage"
)

type fixture struct {
	proposer *Proposer
	store    storage.Store
	provider *provider.MockProvider
	policies []*engine.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	mock := provider.NewMockProvider()
	mock.AddEntity(&provider.Entity{
		ID: "e1",
		Features: map[string]any{
			"category": "promo",
			"sender":   "deals@shop.example.com",
		},
	})
	mock.AddAggregate("category", "promo", &provider.Aggregate{Count: 40, Ratio: 0.7})

	extractor := features.NewExtractor(nil)
	estimator := confidence.NewEstimator(config.ConfidenceConfig{
		BumpScale:      0.05,
		BumpClamp:      0.15,
		BulkBoost:      0.10,
		BulkRatio:      0.6,
		BulkCategories: []string{"promo", "newsletter", "social"},
		RiskOverride:   0.95,
		RiskThreshold:  80,
	}, extractor)

	stats := learning.NewStatsTracker(config.LearningConfig{LearningRate: 0.2, WindowDays: 30}, store)

	p := New(store, mock, engine.NewEvaluator(nil), estimator, stats, nil, nil)
	policies := []*engine.Policy{
		{
			ID:                  "p1",
			Name:                "archive promos",
			Enabled:             true,
			Priority:            10,
			Condition:           ast.Eq("category", "promo"),
			Action:              "archive",
			ConfidenceThreshold: 0.7,
		},
	}
	return &fixture{proposer: p, store: store, provider: mock, policies: policies}
}

func TestRunCreatesProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e1"}, f.policies)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d proposals, want 1", len(created))
	}

	got := created[0]
	if got.PolicyID != "p1" || got.Action != "archive" || got.Status != storage.StatusPending {
		t.Errorf("proposal = %+v", got)
	}
	// Base 0.7 plus bulk boost 0.10; no user weights yet.
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Errorf("confidence = %v, want 0.80", got.Confidence)
	}
	if got.Rationale.Narrative == "" || len(got.Rationale.MatchedFeatures) == 0 {
		t.Errorf("rationale = %+v, want populated", got.Rationale)
	}

	st, err := f.store.GetPolicyStats(ctx, "p1", "u1")
	if err != nil {
		t.Fatalf("GetPolicyStats() error = %v", err)
	}
	if st.Fired != 1 {
		t.Errorf("fired = %d, want 1", st.Fired)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e1"}, f.policies)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first run created %d proposals, want 1", len(first))
	}

	second, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e1"}, f.policies)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second run created %d proposals, want 0", len(second))
	}

	// Fired counts only the proposal that was actually created.
	st, _ := f.store.GetPolicyStats(ctx, "p1", "u1")
	if st.Fired != 1 {
		t.Errorf("fired = %d, want 1", st.Fired)
	}
}

func TestRunSkipsFailedEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.FailGet("e2", errors.New("connection reset"))

	created, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e2", "e1"}, f.policies)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(created) != 1 || created[0].EntityID != "e1" {
		t.Errorf("created = %+v, want only e1", created)
	}
}

func TestRunNoMatchCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddEntity(&provider.Entity{
		ID:       "e3",
		Features: map[string]any{"category": "personal"},
	})

	created, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e3"}, f.policies)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %d proposals, want 0", len(created))
	}
}

func TestRunSkipsDisabledPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.policies[0].Enabled = false
	created, err := f.proposer.Run(ctx, "email-triage", "u1", []string{"e1"}, f.policies)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %d proposals, want 0", len(created))
	}
}
