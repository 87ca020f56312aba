package executor

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/provider"
)

func seedProvider() *provider.MockProvider {
	mock := provider.NewMockProvider()
	mock.AddEntity(&provider.Entity{ID: "e1", Features: map[string]any{"category": "promo"}})
	return mock
}

func TestMutationGateBlocksDryRun(t *testing.T) {
	tests := []struct {
		name         string
		dryRun       bool
		allowActions bool
		wantBlocked  bool
	}{
		{"dry run on, actions off", true, false, true},
		{"dry run on, actions on", true, true, true},
		{"dry run off, actions off", false, false, true},
		{"dry run off, actions on", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := seedProvider()
			e := NewExecutor(config.ExecutorConfig{EnforcementMode: ModeWarn}, nil)

			req := Request{Agent: "email-triage", UserID: "u1", DryRun: tt.dryRun, AllowActions: tt.allowActions}
			err := e.Run(context.Background(), req, mock, func(ctx context.Context, p provider.Provider) error {
				_, err := p.ExecuteAction(ctx, "e1", "archive", nil)
				return err
			})

			if tt.wantBlocked {
				if !errors.Is(err, ErrActionsDisabled) {
					t.Fatalf("error = %v, want ErrActionsDisabled", err)
				}
				if mock.ExecutionCount() != 0 {
					t.Errorf("provider reached through closed gate, executions = %d", mock.ExecutionCount())
				}
			} else {
				if err != nil {
					t.Fatalf("error = %v", err)
				}
				if mock.ExecutionCount() != 1 {
					t.Errorf("executions = %d, want 1", mock.ExecutionCount())
				}
			}
		})
	}
}

func TestAbortModeStopsAtOpsBudget(t *testing.T) {
	mock := seedProvider()
	e := NewExecutor(config.ExecutorConfig{EnforcementMode: ModeAbort}, nil)

	req := Request{Agent: "email-triage", UserID: "u1", BudgetOps: 2}
	var calls, failures int
	err := e.Run(context.Background(), req, mock, func(ctx context.Context, p provider.Provider) error {
		for i := 0; i < 5; i++ {
			calls++
			if _, err := p.GetEntity(ctx, "e1"); err != nil {
				if !errors.Is(err, ErrBudgetExceeded) {
					return err
				}
				failures++
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 5 || failures != 3 {
		t.Errorf("calls = %d, budget failures = %d, want 5 and 3", calls, failures)
	}
}

func TestWarnModeContinuesPastBudget(t *testing.T) {
	mock := seedProvider()
	e := NewExecutor(config.ExecutorConfig{EnforcementMode: ModeWarn}, nil)

	req := Request{Agent: "email-triage", UserID: "u1", BudgetOps: 1}
	err := e.Run(context.Background(), req, mock, func(ctx context.Context, p provider.Provider) error {
		for i := 0; i < 3; i++ {
			if _, err := p.GetEntity(ctx, "e1"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() in warn mode error = %v", err)
	}
}

func TestRequestFallsBackToConfigBudgets(t *testing.T) {
	mock := seedProvider()
	e := NewExecutor(config.ExecutorConfig{BudgetOps: 1, EnforcementMode: ModeAbort}, nil)

	err := e.Run(context.Background(), Request{Agent: "email-triage"}, mock, func(ctx context.Context, p provider.Provider) error {
		if _, err := p.GetEntity(ctx, "e1"); err != nil {
			return err
		}
		_, err := p.GetEntity(ctx, "e1")
		return err
	})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("error = %v, want ErrBudgetExceeded from configured budget", err)
	}
}

func TestReadsAllowedInDryRun(t *testing.T) {
	mock := seedProvider()
	e := NewExecutor(config.ExecutorConfig{EnforcementMode: ModeWarn}, nil)

	req := Request{Agent: "email-triage", DryRun: true}
	err := e.Run(context.Background(), req, mock, func(ctx context.Context, p provider.Provider) error {
		if _, err := p.GetEntity(ctx, "e1"); err != nil {
			return err
		}
		_, err := p.QueryDailyAggregate(ctx, provider.AggregateQuery{Dimension: "category", Value: "promo"})
		return err
	})
	if err != nil {
		t.Fatalf("reads in dry run error = %v", err)
	}
}
