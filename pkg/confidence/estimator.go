package confidence

import (
	"strings"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/features"
)

// Confidence estimates are clamped to this range regardless of inputs.
const (
	MinConfidence = 0.01
	MaxConfidence = 0.99
)

// Entity feature keys consumed by the heuristic rules.
const (
	keyRiskScore      = "risk_score"
	keyAggregateRatio = "aggregate_ratio"
)

// Input is everything the estimator needs for one estimate.
type Input struct {
	// Base is the policy's configured confidence threshold.
	Base float64

	// Entity is the entity's feature map.
	Entity map[string]any

	// UserWeights are the stored weights for the acting user, keyed by
	// normalized feature name.
	UserWeights map[string]float64
}

// Result is one confidence estimate with its decomposition, used to build
// proposal rationales.
type Result struct {
	// Confidence is the final clamped estimate.
	Confidence float64

	// Base, Heuristic and Bump are the pre-clamp terms. When Overridden
	// is true, Heuristic holds the override value and Bump is zero.
	Base      float64
	Heuristic float64
	Bump      float64

	// Overridden is true when the risk override fired.
	Overridden bool

	// Features are the normalized features extracted from the entity,
	// in deterministic order.
	Features []string
}

// Estimator computes confidence estimates. It is pure: all state comes in
// through Input, all tunables through the configuration.
type Estimator struct {
	cfg       config.ConfidenceConfig
	extractor *features.Extractor
	bulk      map[string]bool
}

// NewEstimator creates an estimator. The extractor must be the same
// instance (or identically configured) as the one used by the online
// learner.
func NewEstimator(cfg config.ConfidenceConfig, extractor *features.Extractor) *Estimator {
	bulk := make(map[string]bool, len(cfg.BulkCategories))
	for _, c := range cfg.BulkCategories {
		bulk[strings.ToLower(c)] = true
	}
	return &Estimator{
		cfg:       cfg,
		extractor: extractor,
		bulk:      bulk,
	}
}

// Estimate computes the confidence for applying a policy (whose threshold
// is in.Base) to the entity.
//
//	confidence = clamp(0.01, 0.99, base + heuristic + bump)
//
// The risk override replaces the whole sum and bypasses the bump.
func (e *Estimator) Estimate(in Input) Result {
	extracted := e.extractor.Extract(in.Entity)

	// Hard override: high-risk entities get a fixed high confidence so
	// that conservative policies still surface them, and personalized
	// weights cannot argue them down.
	if risk, ok := numericFeature(in.Entity, keyRiskScore); ok && risk >= e.cfg.RiskThreshold {
		return Result{
			Confidence: clamp(MinConfidence, MaxConfidence, e.cfg.RiskOverride),
			Base:       in.Base,
			Heuristic:  e.cfg.RiskOverride,
			Overridden: true,
			Features:   extracted,
		}
	}

	heuristic := e.heuristicAdjustment(in.Entity)
	bump := e.personalizedBump(extracted, in.UserWeights)

	return Result{
		Confidence: clamp(MinConfidence, MaxConfidence, in.Base+heuristic+bump),
		Base:       in.Base,
		Heuristic:  heuristic,
		Bump:       bump,
		Features:   extracted,
	}
}

// heuristicAdjustment applies the fixed rules: a boost for high-volume
// low-stakes categories whose aggregate ratio clears the threshold.
func (e *Estimator) heuristicAdjustment(entity map[string]any) float64 {
	category, ok := entity[features.KeyCategory].(string)
	if !ok || !e.bulk[strings.ToLower(category)] {
		return 0
	}
	ratio, ok := numericFeature(entity, keyAggregateRatio)
	if !ok || ratio <= e.cfg.BulkRatio {
		return 0
	}
	return e.cfg.BulkBoost
}

// personalizedBump sums the user's weights over the entity's features and
// scales and clamps the contribution. Only the contribution is clamped;
// the stored weights themselves are unbounded.
func (e *Estimator) personalizedBump(extracted []string, weights map[string]float64) float64 {
	if len(weights) == 0 || len(extracted) == 0 {
		return 0
	}
	var sum float64
	for _, f := range extracted {
		sum += weights[f]
	}
	return clamp(-e.cfg.BumpClamp, e.cfg.BumpClamp, e.cfg.BumpScale*sum)
}

func numericFeature(entity map[string]any, key string) (float64, bool) {
	switch n := entity[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
