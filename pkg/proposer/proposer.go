package proposer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/confidence"
	"mercator-hq/ganymede/pkg/learning"
	"mercator-hq/ganymede/pkg/policy/engine"
	"mercator-hq/ganymede/pkg/provider"
	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// keyAggregateRatio is the entity key the estimator reads the daily
// aggregate ratio from. The proposer enriches entities with it before
// estimation.
const keyAggregateRatio = "aggregate_ratio"

// keyCategory is the entity key used as the aggregate dimension value.
const keyCategory = "category"

// Proposer scans candidate entities and creates proposals for policy
// matches. Proposing never mutates entities; the only writes are new
// proposal rows and fired counters.
type Proposer struct {
	store     storage.Store
	provider  provider.Provider
	evaluator *engine.Evaluator
	estimator *confidence.Estimator
	stats     *learning.StatsTracker
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a proposer. collector may be nil when metrics are not
// wired.
func New(
	store storage.Store,
	prov provider.Provider,
	evaluator *engine.Evaluator,
	estimator *confidence.Estimator,
	stats *learning.StatsTracker,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Proposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proposer{
		store:     store,
		provider:  prov,
		evaluator: evaluator,
		estimator: estimator,
		stats:     stats,
		collector: collector,
		logger:    logger.With("component", "proposer"),
	}
}

// Run evaluates all policies against the given entities for one user and
// creates proposals for the matches. A provider failure on one entity
// skips that entity only; the rest of the batch continues. The created
// proposals are returned.
func (p *Proposer) Run(ctx context.Context, agent, userID string, entityIDs []string, policies []*engine.Policy) ([]*storage.ProposedAction, error) {
	weights, err := p.store.GetUserWeights(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user weights: %w", err)
	}

	var created []*storage.ProposedAction
	for _, entityID := range entityIDs {
		proposal, err := p.proposeOne(ctx, agent, userID, entityID, policies, weights)
		if err != nil {
			var provErr *provider.ProviderError
			if errors.As(err, &provErr) {
				p.logger.Warn("skipping entity after provider failure",
					"entity_id", entityID,
					"op", provErr.Op,
					"retryable", provErr.Retryable,
					"error", provErr.Err)
				continue
			}
			return created, err
		}
		if proposal != nil {
			created = append(created, proposal)
		}
	}

	p.logger.Info("proposal run complete",
		"agent", agent,
		"user_id", userID,
		"entities", len(entityIDs),
		"created", len(created))
	return created, nil
}

// proposeOne evaluates one entity. It returns nil without error when no
// policy selects or a proposal already exists.
func (p *Proposer) proposeOne(ctx context.Context, agent, userID, entityID string, policies []*engine.Policy, weights map[string]float64) (*storage.ProposedAction, error) {
	entity, err := p.provider.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	features := p.enrich(ctx, entity.Features)

	var result confidence.Result
	selection := p.evaluator.Select(policies, features, func(policy *engine.Policy) float64 {
		result = p.estimator.Estimate(confidence.Input{
			Base:        policy.ConfidenceThreshold,
			Entity:      features,
			UserWeights: weights,
		})
		return result.Confidence
	})
	if selection == nil {
		return nil, nil
	}
	policy := selection.Policy

	// Re-proposing the same (entity, policy) pair is a no-op while an
	// earlier proposal is still pending or approved.
	active, err := p.store.HasActiveProposal(ctx, entityID, policy.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active proposal: %w", err)
	}
	if active {
		p.logger.Debug("proposal already active",
			"entity_id", entityID,
			"policy_id", policy.ID)
		return nil, nil
	}

	now := time.Now().UTC()
	proposal := &storage.ProposedAction{
		ID:         uuid.New().String(),
		Agent:      agent,
		UserID:     userID,
		EntityID:   entityID,
		Action:     policy.Action,
		Confidence: selection.Confidence,
		Rationale: storage.Rationale{
			MatchedFeatures: result.Features,
			Narrative:       narrative(policy, result),
		},
		PolicyID:  policy.ID,
		Status:    storage.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	if err := p.stats.RecordFired(ctx, policy.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to record firing: %w", err)
	}
	if p.collector != nil {
		p.collector.RecordProposal(policy.ID, policy.Action, selection.Confidence)
	}

	p.logger.Info("created proposal",
		"proposal_id", proposal.ID,
		"entity_id", entityID,
		"policy_id", policy.ID,
		"action", policy.Action,
		"confidence", selection.Confidence)
	return proposal, nil
}

// enrich attaches the entity's daily aggregate ratio when a category is
// present. Aggregate lookups are best-effort; a failure leaves the
// heuristic boost off for this entity.
func (p *Proposer) enrich(ctx context.Context, features map[string]any) map[string]any {
	out := make(map[string]any, len(features)+1)
	for k, v := range features {
		out[k] = v
	}

	category, ok := out[keyCategory].(string)
	if !ok || category == "" {
		return out
	}
	agg, err := p.provider.QueryDailyAggregate(ctx, provider.AggregateQuery{
		Dimension: keyCategory,
		Value:     category,
		Day:       time.Now().UTC(),
	})
	if err != nil {
		p.logger.Debug("aggregate lookup failed", "category", category, "error", err)
		return out
	}
	out[keyAggregateRatio] = agg.Ratio
	return out
}

// narrative renders the human-readable explanation shown to reviewers.
func narrative(policy *engine.Policy, result confidence.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy %q proposes %q with confidence %.2f", policy.Name, policy.Action, result.Confidence)
	if result.Overridden {
		b.WriteString(" (risk override)")
	} else if result.Bump != 0 {
		fmt.Fprintf(&b, " (personalized %+.2f)", result.Bump)
	}
	if len(result.Features) > 0 {
		fmt.Fprintf(&b, "; matched %s", strings.Join(result.Features, ", "))
	}
	return b.String()
}
