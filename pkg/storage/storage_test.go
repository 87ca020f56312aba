package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/policy/ast"
	"mercator-hq/ganymede/pkg/policy/engine"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(SQLiteConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testProposal(id string) *ProposedAction {
	now := time.Now().UTC().Truncate(time.Second)
	return &ProposedAction{
		ID:         id,
		Agent:      "email-triage",
		UserID:     "u1",
		EntityID:   "msg-1",
		Action:     "archive",
		Confidence: 0.74,
		Rationale: Rationale{
			MatchedFeatures: []string{"category:promo", "sender_domain:shop.example.com"},
			Narrative:       "matched promo archiving policy",
		},
		PolicyID:  "p1",
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			p := &engine.Policy{
				ID:                  "p1",
				Name:                "archive promos",
				Enabled:             true,
				Priority:            10,
				Condition:           ast.Eq("category", "promo"),
				Action:              "archive",
				ConfidenceThreshold: 0.7,
			}
			if err := store.UpsertPolicy(ctx, p); err != nil {
				t.Fatalf("UpsertPolicy() error = %v", err)
			}

			got, err := store.GetPolicy(ctx, "p1")
			if err != nil {
				t.Fatalf("GetPolicy() error = %v", err)
			}
			if got.Name != p.Name || got.Priority != p.Priority || !got.Enabled {
				t.Errorf("GetPolicy() = %+v, want %+v", got, p)
			}
			if got.Condition.String() != p.Condition.String() {
				t.Errorf("condition = %s, want %s", got.Condition.String(), p.Condition.String())
			}

			// Upsert replaces.
			p.Priority = 5
			if err := store.UpsertPolicy(ctx, p); err != nil {
				t.Fatalf("UpsertPolicy() replace error = %v", err)
			}
			got, _ = store.GetPolicy(ctx, "p1")
			if got.Priority != 5 {
				t.Errorf("priority after replace = %d, want 5", got.Priority)
			}

			if _, err := store.GetPolicy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetPolicy(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestProposalLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			p := testProposal("prop-1")
			if err := store.CreateProposal(ctx, p); err != nil {
				t.Fatalf("CreateProposal() error = %v", err)
			}

			got, err := store.GetProposal(ctx, "prop-1")
			if err != nil {
				t.Fatalf("GetProposal() error = %v", err)
			}
			if got.Status != StatusPending || got.Confidence != 0.74 {
				t.Errorf("GetProposal() = %+v", got)
			}
			if len(got.Rationale.MatchedFeatures) != 2 {
				t.Errorf("matched features = %v, want 2 entries", got.Rationale.MatchedFeatures)
			}

			active, err := store.HasActiveProposal(ctx, "msg-1", "p1")
			if err != nil {
				t.Fatalf("HasActiveProposal() error = %v", err)
			}
			if !active {
				t.Error("HasActiveProposal() = false, want true")
			}

			if err := store.TransitionProposal(ctx, "prop-1", StatusPending, StatusApproved, "alice"); err != nil {
				t.Fatalf("TransitionProposal() error = %v", err)
			}
			got, _ = store.GetProposal(ctx, "prop-1")
			if got.Status != StatusApproved || got.DecidedBy != "alice" {
				t.Errorf("after approve: status = %s, decided_by = %s", got.Status, got.DecidedBy)
			}
		})
	}
}

func TestTransitionProposalConflict(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			if err := store.CreateProposal(ctx, testProposal("prop-1")); err != nil {
				t.Fatalf("CreateProposal() error = %v", err)
			}

			if err := store.TransitionProposal(ctx, "prop-1", StatusPending, StatusApproved, "alice"); err != nil {
				t.Fatalf("first transition error = %v", err)
			}

			// Second decision on the same proposal loses the swap.
			err := store.TransitionProposal(ctx, "prop-1", StatusPending, StatusRejected, "bob")
			if !errors.Is(err, ErrConflict) {
				t.Errorf("second transition error = %v, want ErrConflict", err)
			}

			// The first decision stands.
			got, _ := store.GetProposal(ctx, "prop-1")
			if got.Status != StatusApproved || got.DecidedBy != "alice" {
				t.Errorf("after conflict: status = %s, decided_by = %s", got.Status, got.DecidedBy)
			}

			err = store.TransitionProposal(ctx, "missing", StatusPending, StatusApproved, "alice")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("transition of missing proposal error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListProposalsFilter(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			for _, id := range []string{"a", "b", "c"} {
				p := testProposal("prop-" + id)
				if id == "c" {
					p.Agent = "other"
				}
				if err := store.CreateProposal(ctx, p); err != nil {
					t.Fatalf("CreateProposal() error = %v", err)
				}
			}
			if err := store.TransitionProposal(ctx, "prop-b", StatusPending, StatusRejected, "alice"); err != nil {
				t.Fatalf("TransitionProposal() error = %v", err)
			}

			pending, err := store.ListProposals(ctx, ProposalFilter{Agent: "email-triage", Status: StatusPending})
			if err != nil {
				t.Fatalf("ListProposals() error = %v", err)
			}
			if len(pending) != 1 || pending[0].ID != "prop-a" {
				t.Errorf("pending for email-triage = %v", ids(pending))
			}

			all, err := store.ListProposals(ctx, ProposalFilter{})
			if err != nil {
				t.Fatalf("ListProposals() error = %v", err)
			}
			if len(all) != 3 {
				t.Errorf("all proposals = %d, want 3", len(all))
			}

			limited, err := store.ListProposals(ctx, ProposalFilter{Limit: 2})
			if err != nil {
				t.Fatalf("ListProposals() error = %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("limited proposals = %d, want 2", len(limited))
			}
		})
	}
}

func ids(proposals []*ProposedAction) []string {
	out := make([]string, len(proposals))
	for i, p := range proposals {
		out[i] = p.ID
	}
	return out
}

func TestAuditAppendAndList(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			now := time.Now().UTC().Truncate(time.Second)
			records := []*AuditAction{
				{ID: "a1", EntityID: "msg-1", Action: "archive", Outcome: OutcomeSuccess, Actor: "alice", EvidenceRef: "prop-1", CreatedAt: now},
				{ID: "a2", EntityID: "msg-2", Action: "label", Outcome: OutcomeError, Actor: "alice", Reason: "provider timeout", CreatedAt: now.Add(time.Second)},
			}
			for _, r := range records {
				if err := store.AppendAudit(ctx, r); err != nil {
					t.Fatalf("AppendAudit() error = %v", err)
				}
			}

			got, err := store.ListAudit(ctx, "msg-1", 0)
			if err != nil {
				t.Fatalf("ListAudit() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != "a1" || got[0].EvidenceRef != "prop-1" {
				t.Errorf("ListAudit(msg-1) = %+v", got)
			}

			all, err := store.ListAudit(ctx, "", 0)
			if err != nil {
				t.Fatalf("ListAudit(all) error = %v", err)
			}
			if len(all) != 2 {
				t.Errorf("ListAudit(all) = %d records, want 2", len(all))
			}
			if all[0].ID != "a2" {
				t.Errorf("newest first: got %s", all[0].ID)
			}
		})
	}
}

func TestUserWeightsAccumulate(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if err := store.AddUserWeight(ctx, "u1", "category:promo", 0.2); err != nil {
					t.Fatalf("AddUserWeight() error = %v", err)
				}
			}
			if err := store.AddUserWeight(ctx, "u1", "sender_domain:x.com", -0.2); err != nil {
				t.Fatalf("AddUserWeight() error = %v", err)
			}

			weights, err := store.GetUserWeights(ctx, "u1")
			if err != nil {
				t.Fatalf("GetUserWeights() error = %v", err)
			}
			if got := weights["category:promo"]; !close64(got, 0.6) {
				t.Errorf("category:promo weight = %v, want 0.6", got)
			}
			if got := weights["sender_domain:x.com"]; !close64(got, -0.2) {
				t.Errorf("sender_domain:x.com weight = %v, want -0.2", got)
			}

			other, err := store.GetUserWeights(ctx, "u2")
			if err != nil {
				t.Fatalf("GetUserWeights(u2) error = %v", err)
			}
			if len(other) != 0 {
				t.Errorf("weights for unknown user = %v, want empty", other)
			}
		})
	}
}

func close64(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestPolicyStatsDerivedRates(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			// 4 fired, 2 approved, 1 rejected.
			if err := store.BumpPolicyStats(ctx, "p1", "u1", 4, 0, 0, 30); err != nil {
				t.Fatalf("BumpPolicyStats() error = %v", err)
			}
			if err := store.BumpPolicyStats(ctx, "p1", "u1", 0, 2, 1, 30); err != nil {
				t.Fatalf("BumpPolicyStats() error = %v", err)
			}

			st, err := store.GetPolicyStats(ctx, "p1", "u1")
			if err != nil {
				t.Fatalf("GetPolicyStats() error = %v", err)
			}
			if st.Fired != 4 || st.Approved != 2 || st.Rejected != 1 {
				t.Fatalf("counters = %d/%d/%d", st.Fired, st.Approved, st.Rejected)
			}
			if !close64(st.Precision, 0.5) {
				t.Errorf("precision = %v, want 0.5", st.Precision)
			}
			if !close64(st.Recall, 2.0/3.0) {
				t.Errorf("recall = %v, want 2/3", st.Recall)
			}

			if _, err := store.GetPolicyStats(ctx, "p9", "u1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetPolicyStats(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestLabeledExampleDedup(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			e := &LabeledExample{
				ID:         "ex-1",
				Agent:      "email-triage",
				Key:        "msg-1",
				Features:   []string{"category:promo"},
				Label:      1,
				Confidence: 0.9,
				Source:     SourceApproval,
				SourceID:   "42",
				CreatedAt:  time.Now().UTC().Truncate(time.Second),
			}
			inserted, err := store.UpsertLabeledExample(ctx, e)
			if err != nil {
				t.Fatalf("UpsertLabeledExample() error = %v", err)
			}
			if !inserted {
				t.Error("first upsert inserted = false, want true")
			}

			// Same (source, source_id) with a fresh row id is a no-op.
			dup := *e
			dup.ID = "ex-2"
			inserted, err = store.UpsertLabeledExample(ctx, &dup)
			if err != nil {
				t.Fatalf("duplicate upsert error = %v", err)
			}
			if inserted {
				t.Error("duplicate upsert inserted = true, want false")
			}

			n, err := store.CountLabeledExamples(ctx, "email-triage")
			if err != nil {
				t.Fatalf("CountLabeledExamples() error = %v", err)
			}
			if n != 1 {
				t.Errorf("example count = %d, want 1", n)
			}

			keys, err := store.LabeledKeys(ctx, "email-triage")
			if err != nil {
				t.Fatalf("LabeledKeys() error = %v", err)
			}
			if !keys["msg-1"] {
				t.Errorf("labeled keys = %v, want msg-1 present", keys)
			}
		})
	}
}

func TestJudgeVerdictsAndWeights(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			v := &JudgeVerdict{
				Agent:      "email-triage",
				JudgeID:    "judge-a",
				Key:        "msg-1",
				Label:      1,
				Confidence: 0.8,
				CreatedAt:  time.Now().UTC().Truncate(time.Second),
			}
			if err := store.AddJudgeVerdict(ctx, v); err != nil {
				t.Fatalf("AddJudgeVerdict() error = %v", err)
			}

			verdicts, err := store.ListJudgeVerdicts(ctx, "email-triage")
			if err != nil {
				t.Fatalf("ListJudgeVerdicts() error = %v", err)
			}
			if len(verdicts) != 1 || verdicts[0].JudgeID != "judge-a" {
				t.Errorf("verdicts = %+v", verdicts)
			}

			w := &JudgeWeight{
				Agent:            "email-triage",
				JudgeID:          "judge-a",
				Agreement:        0.9,
				CalibrationError: 0.1,
				Weight:           0.85,
				Samples:          12,
			}
			if err := store.UpsertJudgeWeight(ctx, w); err != nil {
				t.Fatalf("UpsertJudgeWeight() error = %v", err)
			}
			w.Weight = 0.8
			if err := store.UpsertJudgeWeight(ctx, w); err != nil {
				t.Fatalf("UpsertJudgeWeight() replace error = %v", err)
			}

			weights, err := store.ListJudgeWeights(ctx, "email-triage")
			if err != nil {
				t.Fatalf("ListJudgeWeights() error = %v", err)
			}
			if len(weights) != 1 || !close64(weights[0].Weight, 0.8) {
				t.Errorf("weights = %+v", weights)
			}
		})
	}
}

func TestReviewQueueReplace(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			now := time.Now().UTC().Truncate(time.Second)
			first := []*ReviewItem{
				{Agent: "email-triage", Key: "msg-1", Score: 0.4, Reason: "low confidence", CreatedAt: now},
				{Agent: "email-triage", Key: "msg-2", Score: 0.9, Reason: "high entropy", CreatedAt: now},
			}
			if err := store.ReplaceReviewQueue(ctx, "email-triage", first); err != nil {
				t.Fatalf("ReplaceReviewQueue() error = %v", err)
			}

			got, err := store.ListReviewQueue(ctx, "email-triage")
			if err != nil {
				t.Fatalf("ListReviewQueue() error = %v", err)
			}
			if len(got) != 2 || got[0].Key != "msg-2" {
				t.Errorf("queue = %+v, want msg-2 first", got)
			}

			// Re-running sampling replaces, never appends.
			second := []*ReviewItem{
				{Agent: "email-triage", Key: "msg-3", Score: 0.5, Reason: "low confidence", CreatedAt: now},
			}
			if err := store.ReplaceReviewQueue(ctx, "email-triage", second); err != nil {
				t.Fatalf("ReplaceReviewQueue() second error = %v", err)
			}
			got, _ = store.ListReviewQueue(ctx, "email-triage")
			if len(got) != 1 || got[0].Key != "msg-3" {
				t.Errorf("queue after replace = %+v", got)
			}
		})
	}
}

func TestKVOptimisticConcurrency(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			// Create requires expected version 0.
			v, err := store.PutKV(ctx, "email-triage", "active", []byte("bundle-1"), 0)
			if err != nil {
				t.Fatalf("PutKV(create) error = %v", err)
			}
			if v != 1 {
				t.Errorf("version after create = %d, want 1", v)
			}

			// Re-creating an existing key conflicts.
			if _, err := store.PutKV(ctx, "email-triage", "active", []byte("bundle-2"), 0); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("PutKV(create existing) error = %v, want ErrVersionConflict", err)
			}

			// Update with the current version succeeds.
			v, err = store.PutKV(ctx, "email-triage", "active", []byte("bundle-2"), 1)
			if err != nil {
				t.Fatalf("PutKV(update) error = %v", err)
			}
			if v != 2 {
				t.Errorf("version after update = %d, want 2", v)
			}

			// A stale version loses.
			if _, err := store.PutKV(ctx, "email-triage", "active", []byte("bundle-3"), 1); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("PutKV(stale) error = %v, want ErrVersionConflict", err)
			}

			entry, err := store.GetKV(ctx, "email-triage", "active")
			if err != nil {
				t.Fatalf("GetKV() error = %v", err)
			}
			if string(entry.Value) != "bundle-2" || entry.Version != 2 {
				t.Errorf("entry = %q v%d, want bundle-2 v2", entry.Value, entry.Version)
			}

			if _, err := store.GetKV(ctx, "email-triage", "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetKV(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}
