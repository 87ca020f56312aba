package trainer

import (
	"math"

	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/storage"
)

// Training hyperparameters. These are fit internals, not tunables: the
// loss is convex, so the exact values only affect convergence speed.
const (
	logisticEpochs = 200
	logisticRate   = 0.1
	logisticL2     = 0.001
)

// Logistic fits per-feature weights by gradient descent on the weighted
// logistic loss. Example confidence scales each example's contribution,
// so gold labels pull harder than soft feedback.
type Logistic struct {
	minExamples int
}

// Name implements Trainer.
func (l *Logistic) Name() string { return StrategyLogistic }

// Fit implements Trainer.
func (l *Logistic) Fit(examples []*storage.LabeledExample) (*bundle.Payload, error) {
	if len(examples) < l.minExamples {
		return nil, ErrInsufficientData
	}

	vocab := vocabulary(examples)
	index := make(map[string]int, len(vocab))
	for i, f := range vocab {
		index[f] = i
	}

	weights := make([]float64, len(vocab))
	var bias float64

	for epoch := 0; epoch < logisticEpochs; epoch++ {
		for _, e := range examples {
			// Margin of the current model on this example.
			z := bias
			for _, f := range e.Features {
				z += weights[index[f]]
			}

			// y in {0,1}; gradient of the log loss scaled by the
			// example's confidence.
			y := 0.0
			if e.Label > 0 {
				y = 1.0
			}
			g := e.Confidence * (sigmoid(z) - y)

			bias -= logisticRate * g
			for _, f := range e.Features {
				i := index[f]
				weights[i] -= logisticRate * (g + logisticL2*weights[i])
			}
		}
	}

	out := make(map[string]float64, len(vocab)+1)
	for i, f := range vocab {
		out[f] = weights[i]
	}
	out["_bias"] = bias

	return newPayload(StrategyLogistic, out, len(examples)), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
