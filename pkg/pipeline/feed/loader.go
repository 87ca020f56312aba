package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/storage"
)

// Event is one external labeling event (explicit feedback or a gold
// set entry). Decision-derived examples are pulled from the store
// directly; events cover everything else.
type Event struct {
	// Key identifies the labeled prediction (usually the entity id).
	Key string

	// Features is the normalized feature vector.
	Features []string

	// Label is +1 or -1.
	Label int

	// Source is the event origin ("feedback" or "gold").
	Source storage.LabelSource

	// SourceID uniquely identifies the event within its source.
	SourceID string
}

// Loader builds the labeled training set for an agent.
type Loader struct {
	store  storage.Store
	cfg    config.PipelineConfig
	logger *slog.Logger
}

// NewLoader creates a feed loader.
func NewLoader(store storage.Store, cfg config.PipelineConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "pipeline.feed"),
	}
}

// LoadDecisions converts the agent's decided proposals into labeled
// examples. Approved and executed proposals label +1, rejected -1;
// pending proposals are skipped. Returns the number of examples
// actually inserted.
func (l *Loader) LoadDecisions(ctx context.Context, agent string) (int, error) {
	proposals, err := l.store.ListProposals(ctx, storage.ProposalFilter{Agent: agent})
	if err != nil {
		return 0, fmt.Errorf("failed to list proposals: %w", err)
	}

	inserted := 0
	for _, p := range proposals {
		var label int
		switch p.Status {
		case storage.StatusApproved, storage.StatusExecuted:
			label = 1
		case storage.StatusRejected:
			label = -1
		default:
			continue
		}

		ok, err := l.store.UpsertLabeledExample(ctx, &storage.LabeledExample{
			ID:         uuid.New().String(),
			Agent:      agent,
			Key:        p.EntityID,
			Features:   p.Rationale.MatchedFeatures,
			Label:      label,
			Confidence: l.cfg.ApprovalConfidence,
			Source:     storage.SourceApproval,
			SourceID:   p.ID,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to ingest decision %s: %w", p.ID, err)
		}
		if ok {
			inserted++
		}
	}

	l.logger.Info("loaded decision examples",
		"agent", agent,
		"proposals", len(proposals),
		"inserted", inserted)
	return inserted, nil
}

// Ingest inserts external labeling events. Duplicate (source, source id)
// pairs are no-ops. Returns the number of examples actually inserted.
func (l *Loader) Ingest(ctx context.Context, agent string, events []Event) (int, error) {
	inserted := 0
	for _, e := range events {
		if e.Label != 1 && e.Label != -1 {
			return inserted, fmt.Errorf("event %s/%s has invalid label %d", e.Source, e.SourceID, e.Label)
		}

		var conf float64
		switch e.Source {
		case storage.SourceGold:
			conf = l.cfg.GoldConfidence
		case storage.SourceFeedback:
			conf = l.cfg.FeedbackConfidence
		default:
			return inserted, fmt.Errorf("event %s/%s has unsupported source", e.Source, e.SourceID)
		}

		ok, err := l.store.UpsertLabeledExample(ctx, &storage.LabeledExample{
			ID:         uuid.New().String(),
			Agent:      agent,
			Key:        e.Key,
			Features:   e.Features,
			Label:      e.Label,
			Confidence: conf,
			Source:     e.Source,
			SourceID:   e.SourceID,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to ingest event %s/%s: %w", e.Source, e.SourceID, err)
		}
		if ok {
			inserted++
		}
	}

	l.logger.Info("ingested feedback events",
		"agent", agent,
		"events", len(events),
		"inserted", inserted)
	return inserted, nil
}
