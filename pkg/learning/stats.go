package learning

import (
	"context"
	"fmt"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/storage"
)

// StatsTracker maintains rolling per-(policy, user) performance
// counters. Precision and recall are derived inside the store so that
// concurrent bumps never produce torn rates.
type StatsTracker struct {
	store      storage.Store
	windowDays int
}

// NewStatsTracker creates a tracker using the configured stats window.
func NewStatsTracker(cfg config.LearningConfig, store storage.Store) *StatsTracker {
	return &StatsTracker{
		store:      store,
		windowDays: cfg.WindowDays,
	}
}

// RecordFired counts a policy firing (a proposal created).
func (t *StatsTracker) RecordFired(ctx context.Context, policyID, userID string) error {
	if err := t.store.BumpPolicyStats(ctx, policyID, userID, 1, 0, 0, t.windowDays); err != nil {
		return fmt.Errorf("failed to record firing: %w", err)
	}
	return nil
}

// RecordApproved counts an approval of a proposal from this policy.
func (t *StatsTracker) RecordApproved(ctx context.Context, policyID, userID string) error {
	if err := t.store.BumpPolicyStats(ctx, policyID, userID, 0, 1, 0, t.windowDays); err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}
	return nil
}

// RecordRejected counts a rejection of a proposal from this policy.
func (t *StatsTracker) RecordRejected(ctx context.Context, policyID, userID string) error {
	if err := t.store.BumpPolicyStats(ctx, policyID, userID, 0, 0, 1, t.windowDays); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

// Stats returns the current counters for a (policy, user) pair.
func (t *StatsTracker) Stats(ctx context.Context, policyID, userID string) (*storage.PolicyStats, error) {
	return t.store.GetPolicyStats(ctx, policyID, userID)
}
