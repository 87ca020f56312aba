package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline/bundle"
)

// Decision is the outcome of one guard pass over an agent.
type Decision string

const (
	// DecisionNone means the agent has no canary to supervise.
	DecisionNone Decision = "none"

	// DecisionWait means the canary has not been observed long enough.
	DecisionWait Decision = "wait"

	// DecisionHold means the delta is inside the promote/rollback band.
	DecisionHold Decision = "hold"

	// DecisionStep means the canary's traffic share was increased.
	DecisionStep Decision = "step"

	// DecisionPromote means the canary became the active bundle.
	DecisionPromote Decision = "promote"

	// DecisionRollback means the canary regressed and the backup was
	// restored.
	DecisionRollback Decision = "rollback"
)

// QualitySource reports the observed decision quality of a bundle, as a
// rate in [0, 1]. The usual implementation derives it from approval
// precision over the monitoring window.
type QualitySource interface {
	Quality(ctx context.Context, agent, bundleID string) (float64, error)
}

// Guard supervises canaries against their active baseline.
type Guard struct {
	manager      *bundle.Manager
	quality      QualitySource
	promoteGain  float64
	rollbackDrop float64
	minWindow    time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewGuard creates a guard.
func NewGuard(manager *bundle.Manager, quality QualitySource, cfg config.PipelineConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	minWindow := cfg.MinWindow
	if minWindow == 0 {
		minWindow = 24 * time.Hour
	}
	return &Guard{
		manager:      manager,
		quality:      quality,
		promoteGain:  cfg.PromoteGain,
		rollbackDrop: cfg.RollbackDrop,
		minWindow:    minWindow,
		now:          time.Now,
		logger:       logger.With("component", "pipeline.guard"),
	}
}

// Run supervises the agent's canary, if any. The monitoring window
// restarts at every step, so each traffic share must hold its gain for
// a full window before the next increase.
func (g *Guard) Run(ctx context.Context, agent string) (Decision, error) {
	canary, err := g.manager.Canary(ctx, agent)
	if err != nil {
		return DecisionNone, err
	}
	if canary == nil {
		return DecisionNone, nil
	}

	if g.now().UTC().Sub(canary.UpdatedAt) < g.minWindow {
		g.logger.Debug("canary still inside monitoring window",
			"agent", agent,
			"bundle_id", canary.ID,
			"canary_percent", canary.CanaryPercent)
		return DecisionWait, nil
	}

	canaryQ, err := g.quality.Quality(ctx, agent, canary.ID)
	if err != nil {
		return DecisionNone, fmt.Errorf("failed to read canary quality: %w", err)
	}

	baselineQ := 0.0
	if active, err := g.manager.Active(ctx, agent); err != nil {
		return DecisionNone, err
	} else if active != nil {
		baselineQ, err = g.quality.Quality(ctx, agent, active.ID)
		if err != nil {
			return DecisionNone, fmt.Errorf("failed to read baseline quality: %w", err)
		}
	}

	delta := canaryQ - baselineQ
	g.logger.Info("evaluated canary",
		"agent", agent,
		"bundle_id", canary.ID,
		"canary_percent", canary.CanaryPercent,
		"canary_quality", canaryQ,
		"baseline_quality", baselineQ,
		"delta", delta)

	switch {
	case delta < -g.rollbackDrop:
		if err := g.manager.Rollback(ctx, agent, "guard", "regression"); err != nil {
			return DecisionNone, fmt.Errorf("failed to roll back: %w", err)
		}
		return DecisionRollback, nil

	case delta > g.promoteGain:
		if canary.CanaryPercent < 50 {
			if err := g.manager.SetCanaryPercent(ctx, agent, 50); err != nil {
				return DecisionNone, fmt.Errorf("failed to step canary: %w", err)
			}
			return DecisionStep, nil
		}
		if err := g.manager.Promote(ctx, agent); err != nil {
			return DecisionNone, fmt.Errorf("failed to promote canary: %w", err)
		}
		return DecisionPromote, nil

	default:
		return DecisionHold, nil
	}
}
