package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/learning"
	"mercator-hq/ganymede/pkg/provider"
	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Workflow decides pending proposals. The status transition is a
// compare-and-swap: exactly one of any set of concurrent deciders wins,
// and only the winner's side effects (execution, audit, counters,
// learner update) happen.
type Workflow struct {
	store     storage.Store
	provider  provider.Provider
	stats     *learning.StatsTracker
	learner   *learning.Learner
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewWorkflow creates an approval workflow. collector may be nil when
// metrics are not wired.
func NewWorkflow(
	store storage.Store,
	prov provider.Provider,
	stats *learning.StatsTracker,
	learner *learning.Learner,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		store:     store,
		provider:  prov,
		stats:     stats,
		learner:   learner,
		collector: collector,
		logger:    logger.With("component", "approval"),
	}
}

// Approve approves a pending proposal and executes its action.
//
// Returns ErrConflict when the proposal was already decided. Returns
// *ExecutionError when the approval won but the provider failed; the
// proposal then stays approved and is not fed to the learner. On
// success the proposal ends up executed, an audit record is appended,
// and the learner reinforces the entity's features.
func (w *Workflow) Approve(ctx context.Context, proposalID, actor string) error {
	proposal, err := w.store.GetProposal(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("failed to load proposal: %w", err)
	}

	err = w.store.TransitionProposal(ctx, proposalID, storage.StatusPending, storage.StatusApproved, actor)
	if errors.Is(err, storage.ErrConflict) {
		if w.collector != nil {
			w.collector.RecordConflict()
		}
		w.logger.Info("approval lost to concurrent decision",
			"proposal_id", proposalID,
			"actor", actor)
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to approve proposal: %w", err)
	}

	if w.collector != nil {
		w.collector.RecordDecision("approved")
	}

	entity, fetchErr := w.provider.GetEntity(ctx, proposal.EntityID)

	start := time.Now()
	var execErr error
	if fetchErr != nil {
		execErr = fetchErr
	} else {
		_, execErr = w.provider.ExecuteAction(ctx, proposal.EntityID, proposal.Action, proposal.Params)
	}
	if execErr != nil {
		if w.collector != nil {
			w.collector.RecordExecution(proposal.Action, "error", time.Since(start))
		}
		if err := w.audit(ctx, proposal, storage.OutcomeError, actor, execErr.Error()); err != nil {
			w.logger.Error("failed to audit execution failure",
				"proposal_id", proposalID,
				"error", err)
		}
		w.logger.Warn("approved proposal failed to execute",
			"proposal_id", proposalID,
			"action", proposal.Action,
			"error", execErr)
		return &ExecutionError{ProposalID: proposalID, Action: proposal.Action, Err: execErr}
	}
	if w.collector != nil {
		w.collector.RecordExecution(proposal.Action, "success", time.Since(start))
	}

	if err := w.audit(ctx, proposal, storage.OutcomeSuccess, actor, ""); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	if err := w.stats.RecordApproved(ctx, proposal.PolicyID, proposal.UserID); err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}

	if err := w.store.TransitionProposal(ctx, proposalID, storage.StatusApproved, storage.StatusExecuted, actor); err != nil {
		return fmt.Errorf("failed to mark proposal executed: %w", err)
	}

	if err := w.learner.Update(ctx, proposal.UserID, entity.Features, learning.LabelApprove); err != nil {
		return fmt.Errorf("failed to apply learner update: %w", err)
	}
	if w.collector != nil {
		w.collector.RecordLearnerUpdate("approve")
	}

	w.logger.Info("proposal approved and executed",
		"proposal_id", proposalID,
		"entity_id", proposal.EntityID,
		"action", proposal.Action,
		"actor", actor)
	return nil
}

// Reject rejects a pending proposal. Returns ErrConflict when the
// proposal was already decided. Rejection executes nothing; it appends
// a noop audit record and penalizes the entity's features.
func (w *Workflow) Reject(ctx context.Context, proposalID, actor string) error {
	proposal, err := w.store.GetProposal(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("failed to load proposal: %w", err)
	}

	err = w.store.TransitionProposal(ctx, proposalID, storage.StatusPending, storage.StatusRejected, actor)
	if errors.Is(err, storage.ErrConflict) {
		if w.collector != nil {
			w.collector.RecordConflict()
		}
		w.logger.Info("rejection lost to concurrent decision",
			"proposal_id", proposalID,
			"actor", actor)
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to reject proposal: %w", err)
	}

	if w.collector != nil {
		w.collector.RecordDecision("rejected")
	}
	if err := w.stats.RecordRejected(ctx, proposal.PolicyID, proposal.UserID); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}

	if err := w.audit(ctx, proposal, storage.OutcomeNoop, actor, "rejected"); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	// The learner needs the entity's features. A provider failure here
	// does not undo the rejection; the weight update is skipped.
	entity, err := w.provider.GetEntity(ctx, proposal.EntityID)
	if err != nil {
		w.logger.Warn("skipping learner update, entity unavailable",
			"proposal_id", proposalID,
			"entity_id", proposal.EntityID,
			"error", err)
		return nil
	}
	if err := w.learner.Update(ctx, proposal.UserID, entity.Features, learning.LabelReject); err != nil {
		return fmt.Errorf("failed to apply learner update: %w", err)
	}
	if w.collector != nil {
		w.collector.RecordLearnerUpdate("reject")
	}

	w.logger.Info("proposal rejected",
		"proposal_id", proposalID,
		"entity_id", proposal.EntityID,
		"actor", actor)
	return nil
}

func (w *Workflow) audit(ctx context.Context, proposal *storage.ProposedAction, outcome storage.AuditOutcome, actor, reason string) error {
	return w.store.AppendAudit(ctx, &storage.AuditAction{
		ID:          uuid.New().String(),
		EntityID:    proposal.EntityID,
		Action:      proposal.Action,
		Outcome:     outcome,
		Actor:       actor,
		EvidenceRef: proposal.ID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
}
