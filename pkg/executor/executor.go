package executor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/provider"
)

// Enforcement modes for budget overruns.
const (
	// ModeWarn logs overruns and lets the work continue.
	ModeWarn = "warn"

	// ModeAbort fails provider calls with ErrBudgetExceeded once the
	// budget is exhausted.
	ModeAbort = "abort"
)

// Request describes one unit of agent work. Zero-valued budget fields
// fall back to the executor's configured defaults. DryRun and
// AllowActions do not fall back: the request states them explicitly, and
// mutation requires DryRun false and AllowActions true at once.
type Request struct {
	Agent        string
	UserID       string
	DryRun       bool
	AllowActions bool
	BudgetMS     int64
	BudgetOps    int64
}

// Executor wraps units of work with budget tracking and the mutation
// gate.
type Executor struct {
	cfg    config.ExecutorConfig
	logger *slog.Logger
}

// NewExecutor creates an executor from configuration.
func NewExecutor(cfg config.ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:    cfg,
		logger: logger.With("component", "executor"),
	}
}

// Run executes fn with a provider wrapped in this request's budget
// tracking and mutation gate. fn receives the wrapped provider and must
// use it for all provider access.
func (e *Executor) Run(ctx context.Context, req Request, prov provider.Provider, fn func(ctx context.Context, p provider.Provider) error) error {
	budgetMS := req.BudgetMS
	if budgetMS == 0 {
		budgetMS = e.cfg.BudgetMS
	}
	budgetOps := req.BudgetOps
	if budgetOps == 0 {
		budgetOps = e.cfg.BudgetOps
	}
	mode := e.cfg.EnforcementMode
	if mode == "" {
		mode = ModeWarn
	}

	g := &guardedProvider{
		base: prov,
		budget: &budget{
			start:     time.Now(),
			budgetMS:  budgetMS,
			budgetOps: budgetOps,
			mode:      mode,
			logger:    e.logger.With("agent", req.Agent),
		},
		allowMutation: !req.DryRun && req.AllowActions,
	}

	e.logger.Info("starting unit of work",
		"agent", req.Agent,
		"user_id", req.UserID,
		"dry_run", req.DryRun,
		"allow_actions", req.AllowActions,
		"budget_ms", budgetMS,
		"budget_ops", budgetOps)

	err := fn(ctx, g)

	e.logger.Info("unit of work finished",
		"agent", req.Agent,
		"ops", g.budget.ops.Load(),
		"elapsed", time.Since(g.budget.start),
		"error", err)
	return err
}

// budget tracks elapsed time and provider operations for one unit of
// work.
type budget struct {
	start     time.Time
	budgetMS  int64
	budgetOps int64
	mode      string
	ops       atomic.Int64
	warned    atomic.Bool
	logger    *slog.Logger
}

// charge counts one provider operation and enforces the budgets. In warn
// mode overruns are logged once and work continues.
func (b *budget) charge(op string) error {
	ops := b.ops.Add(1)

	overOps := b.budgetOps > 0 && ops > b.budgetOps
	overTime := b.budgetMS > 0 && time.Since(b.start).Milliseconds() > b.budgetMS
	if !overOps && !overTime {
		return nil
	}

	if b.mode == ModeAbort {
		return ErrBudgetExceeded
	}
	if b.warned.CompareAndSwap(false, true) {
		b.logger.Warn("budget exceeded, continuing",
			"op", op,
			"ops", ops,
			"budget_ops", b.budgetOps,
			"elapsed", time.Since(b.start),
			"budget_ms", b.budgetMS)
	}
	return nil
}

// guardedProvider counts every call against the budget and blocks
// mutation unless the gate is open.
type guardedProvider struct {
	base          provider.Provider
	budget        *budget
	allowMutation bool
}

// GetEntity implements provider.Provider.
func (g *guardedProvider) GetEntity(ctx context.Context, entityID string) (*provider.Entity, error) {
	if err := g.budget.charge("get_entity"); err != nil {
		return nil, err
	}
	return g.base.GetEntity(ctx, entityID)
}

// QueryDailyAggregate implements provider.Provider.
func (g *guardedProvider) QueryDailyAggregate(ctx context.Context, q provider.AggregateQuery) (*provider.Aggregate, error) {
	if err := g.budget.charge("query_aggregate"); err != nil {
		return nil, err
	}
	return g.base.QueryDailyAggregate(ctx, q)
}

// ExecuteAction implements provider.Provider. The mutation gate is
// absolute: when closed, the call fails before the budget is charged and
// the underlying provider is never reached.
func (g *guardedProvider) ExecuteAction(ctx context.Context, entityID, action string, params map[string]any) (*provider.ExecStats, error) {
	if !g.allowMutation {
		return nil, ErrActionsDisabled
	}
	if err := g.budget.charge("execute_action"); err != nil {
		return nil, err
	}
	return g.base.ExecuteAction(ctx, entityID, action, params)
}

// Name implements provider.Provider.
func (g *guardedProvider) Name() string {
	return g.base.Name()
}
