package trainer

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/storage"
)

// ErrInsufficientData indicates the training set is below the configured
// minimum. This is steady state for new agents, not a failure: the
// pipeline simply produces no bundle this run.
var ErrInsufficientData = errors.New("insufficient training data")

// Strategy names.
const (
	StrategyLogistic = "logistic"
	StrategyStump    = "stump"
)

// Trainer fits a payload from labeled examples.
type Trainer interface {
	// Fit trains on the examples and returns a payload. Returns
	// ErrInsufficientData when len(examples) is below the configured
	// minimum.
	Fit(examples []*storage.LabeledExample) (*bundle.Payload, error)

	// Name returns the strategy name.
	Name() string
}

// New returns the trainer for the configured strategy.
func New(cfg config.PipelineConfig) (Trainer, error) {
	switch cfg.Strategy {
	case StrategyLogistic, "":
		return &Logistic{minExamples: cfg.MinExamples}, nil
	case StrategyStump:
		return &Stump{minExamples: cfg.MinExamples}, nil
	default:
		return nil, fmt.Errorf("unknown trainer strategy: %q", cfg.Strategy)
	}
}

// vocabulary collects the distinct features of a training set in first
// seen order.
func vocabulary(examples []*storage.LabeledExample) []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, e := range examples {
		for _, f := range e.Features {
			if !seen[f] {
				seen[f] = true
				vocab = append(vocab, f)
			}
		}
	}
	return vocab
}

func newPayload(strategy string, weights map[string]float64, exampleCount int) *bundle.Payload {
	return &bundle.Payload{
		Strategy:       strategy,
		Thresholds:     map[string]float64{"default": 0.5},
		FeatureWeights: weights,
		ExampleCount:   exampleCount,
		TrainedAt:      time.Now().UTC(),
	}
}
