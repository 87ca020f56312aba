package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Uncertainty strategies.
const (
	// StrategyLowConfidence scores by distance from certainty of the
	// model's top prediction.
	StrategyLowConfidence = "low_confidence"

	// StrategyEntropy scores by the entropy of judge label
	// disagreement.
	StrategyEntropy = "entropy"

	// StrategyVariance scores by the variance of judge stated
	// confidences.
	StrategyVariance = "variance"
)

// Prediction is one scored model output considered for human review.
type Prediction struct {
	// Key identifies the prediction (usually the entity id).
	Key string

	// Confidence is the model's top-1 confidence.
	Confidence float64

	// JudgeLabels are the labels judges assigned to this key.
	JudgeLabels []int

	// JudgeConfidences are the stated confidences behind JudgeLabels.
	JudgeConfidences []float64
}

// Sampler fills the human review queue with the most uncertain
// predictions.
type Sampler struct {
	store     storage.Store
	strategy  string
	size      int
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewSampler creates a sampler. collector may be nil when metrics are
// not wired.
func NewSampler(store storage.Store, cfg config.PipelineConfig, collector *metrics.Collector, logger *slog.Logger) (*Sampler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	strategy := cfg.SamplerStrategy
	if strategy == "" {
		strategy = StrategyLowConfidence
	}
	switch strategy {
	case StrategyLowConfidence, StrategyEntropy, StrategyVariance:
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %q", strategy)
	}
	size := cfg.SampleSize
	if size <= 0 {
		size = 20
	}
	return &Sampler{
		store:     store,
		strategy:  strategy,
		size:      size,
		collector: collector,
		logger:    logger.With("component", "pipeline.sampler"),
	}, nil
}

// Collect builds predictions from the agent's pending proposals joined
// with judge verdicts by key.
func (s *Sampler) Collect(ctx context.Context, agent string) ([]Prediction, error) {
	proposals, err := s.store.ListProposals(ctx, storage.ProposalFilter{Agent: agent, Status: storage.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending proposals: %w", err)
	}
	verdicts, err := s.store.ListJudgeVerdicts(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}

	byKey := make(map[string][]*storage.JudgeVerdict)
	for _, v := range verdicts {
		byKey[v.Key] = append(byKey[v.Key], v)
	}

	out := make([]Prediction, 0, len(proposals))
	for _, p := range proposals {
		pred := Prediction{Key: p.EntityID, Confidence: p.Confidence}
		for _, v := range byKey[p.EntityID] {
			pred.JudgeLabels = append(pred.JudgeLabels, v.Label)
			pred.JudgeConfidences = append(pred.JudgeConfidences, v.Confidence)
		}
		out = append(out, pred)
	}
	return out, nil
}

// Run scores the predictions, drops keys that already carry a label,
// and replaces the agent's review queue with the top of the list. The
// written queue is returned.
func (s *Sampler) Run(ctx context.Context, agent string, predictions []Prediction) ([]*storage.ReviewItem, error) {
	labeled, err := s.store.LabeledKeys(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to load labeled keys: %w", err)
	}

	now := time.Now().UTC()
	var items []*storage.ReviewItem
	for _, p := range predictions {
		if labeled[p.Key] {
			continue
		}
		items = append(items, &storage.ReviewItem{
			Agent:     agent,
			Key:       p.Key,
			Score:     s.score(p),
			Reason:    s.strategy,
			CreatedAt: now,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Key < items[j].Key
	})
	if len(items) > s.size {
		items = items[:s.size]
	}

	if err := s.store.ReplaceReviewQueue(ctx, agent, items); err != nil {
		return nil, fmt.Errorf("failed to replace review queue: %w", err)
	}
	if s.collector != nil {
		s.collector.UpdateReviewQueueSize(agent, len(items))
	}

	s.logger.Info("refreshed review queue",
		"agent", agent,
		"strategy", s.strategy,
		"candidates", len(predictions),
		"queued", len(items))
	return items, nil
}

func (s *Sampler) score(p Prediction) float64 {
	switch s.strategy {
	case StrategyEntropy:
		return labelEntropy(p.JudgeLabels)
	case StrategyVariance:
		return variance(p.JudgeConfidences)
	default:
		return 1 - p.Confidence
	}
}

// labelEntropy is the binary entropy of the judges' label split. Full
// disagreement scores 1, unanimity 0.
func labelEntropy(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	positive := 0
	for _, l := range labels {
		if l > 0 {
			positive++
		}
	}
	p := float64(positive) / float64(len(labels))
	if p == 0 || p == 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	out := 0.0
	for _, v := range values {
		out += (v - mean) * (v - mean)
	}
	return out / float64(len(values))
}
