package learning

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/features"
	"mercator-hq/ganymede/pkg/storage"
)

// Labels accepted by the learner.
const (
	// LabelApprove reinforces the features of an approved proposal.
	LabelApprove = 1

	// LabelReject penalizes the features of a rejected proposal.
	LabelReject = -1
)

// Learner applies online per-user weight updates from decision feedback.
//
// Each update extracts the entity's normalized features and adds
// rate * label to the stored weight of every feature. Updates are
// commutative, so the order in which concurrent decisions land does not
// change the converged weights.
type Learner struct {
	store     storage.Store
	extractor *features.Extractor
	rate      float64
	logger    *slog.Logger
}

// NewLearner creates a learner with the configured learning rate.
func NewLearner(cfg config.LearningConfig, store storage.Store, extractor *features.Extractor, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		store:     store,
		extractor: extractor,
		rate:      cfg.LearningRate,
		logger:    logger.With("component", "learning.learner"),
	}
}

// Update applies one feedback event for a user. label must be
// LabelApprove or LabelReject.
func (l *Learner) Update(ctx context.Context, userID string, entity map[string]any, label int) error {
	if label != LabelApprove && label != LabelReject {
		return fmt.Errorf("invalid label %d", label)
	}

	extracted := l.extractor.Extract(entity)
	if len(extracted) == 0 {
		l.logger.Debug("no features extracted, skipping update", "user_id", userID)
		return nil
	}

	delta := l.rate * float64(label)
	for _, feature := range extracted {
		if err := l.store.AddUserWeight(ctx, userID, feature, delta); err != nil {
			return fmt.Errorf("failed to update weight for %q: %w", feature, err)
		}
	}

	l.logger.Debug("applied weight update",
		"user_id", userID,
		"label", label,
		"features", len(extracted),
		"delta", delta)
	return nil
}
