package trainer

import (
	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/storage"
)

// Stump fits the single most predictive feature: the (feature, polarity)
// pair whose presence rule maximizes confidence-weighted accuracy over
// the training set. Useful as a cheap, interpretable baseline.
type Stump struct {
	minExamples int
}

// Name implements Trainer.
func (s *Stump) Name() string { return StrategyStump }

// Fit implements Trainer.
func (s *Stump) Fit(examples []*storage.LabeledExample) (*bundle.Payload, error) {
	if len(examples) < s.minExamples {
		return nil, ErrInsufficientData
	}

	vocab := vocabulary(examples)

	var (
		bestFeature string
		bestScore   = -1.0
		bestWeight  float64
	)
	for _, f := range vocab {
		for _, polarity := range []float64{1, -1} {
			score := 0.0
			total := 0.0
			for _, e := range examples {
				predicted := -polarity
				if hasFeature(e, f) {
					predicted = polarity
				}
				total += e.Confidence
				if (predicted > 0) == (e.Label > 0) {
					score += e.Confidence
				}
			}
			if total > 0 {
				score /= total
			}
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestWeight = polarity
			}
		}
	}

	weights := map[string]float64{}
	if bestFeature != "" {
		weights[bestFeature] = bestWeight
	}

	payload := newPayload(StrategyStump, weights, len(examples))
	payload.Thresholds["accuracy"] = bestScore
	return payload, nil
}

func hasFeature(e *storage.LabeledExample, f string) bool {
	for _, have := range e.Features {
		if have == f {
			return true
		}
	}
	return false
}
