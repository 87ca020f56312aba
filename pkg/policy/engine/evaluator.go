package engine

import (
	"fmt"
	"log/slog"

	"mercator-hq/ganymede/pkg/policy/ast"
)

// Features is the flat feature map of an entity, as supplied by a Provider.
type Features map[string]any

// Evaluator evaluates condition trees against entity features.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		logger: logger.With("component", "policy.evaluator"),
	}
}

// Evaluate returns whether the condition tree matches the features.
// Malformed trees fail closed: the result is false, never an error.
// A nil condition never matches.
func (e *Evaluator) Evaluate(condition *ast.Node, features Features) bool {
	matched, err := e.eval(condition, features)
	if err != nil {
		// Fail closed. A policy with a broken condition must never fire.
		e.logger.Debug("condition evaluation failed closed",
			"error", err,
		)
		return false
	}
	return matched
}

// eval is the recursive visitor. It returns an error for structural
// problems; Evaluate converts any error into a non-match.
func (e *Evaluator) eval(node *ast.Node, features Features) (bool, error) {
	if node == nil {
		return false, fmt.Errorf("nil condition node")
	}

	switch node.Kind {
	case ast.KindEq:
		return e.evalEq(node, features)

	case ast.KindExists:
		if node.Field == "" {
			return false, fmt.Errorf("exists node without field")
		}
		_, ok := features[node.Field]
		return ok, nil

	case ast.KindAll:
		if len(node.Children) == 0 {
			return false, fmt.Errorf("all node without children")
		}
		for _, child := range node.Children {
			matched, err := e.eval(child, features)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil

	case ast.KindAny:
		if len(node.Children) == 0 {
			return false, fmt.Errorf("any node without children")
		}
		for _, child := range node.Children {
			matched, err := e.eval(child, features)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil

	case ast.KindNot:
		if len(node.Children) != 1 {
			return false, fmt.Errorf("not node requires exactly one child, got %d", len(node.Children))
		}
		matched, err := e.eval(node.Children[0], features)
		if err != nil {
			return false, err
		}
		return !matched, nil

	case ast.KindRange:
		return e.evalRange(node, features)

	default:
		return false, fmt.Errorf("unknown condition kind: %q", node.Kind)
	}
}

// evalEq compares the feature value with the expected value. There is no
// type coercion across kinds: numbers compare numerically, strings and
// booleans compare exactly, anything else does not match.
func (e *Evaluator) evalEq(node *ast.Node, features Features) (bool, error) {
	if node.Field == "" {
		return false, fmt.Errorf("eq node without field")
	}

	actual, ok := features[node.Field]
	if !ok {
		// Missing field is a plain non-match, not a structural error.
		return false, nil
	}

	if a, aok := toFloat(actual); aok {
		if b, bok := toFloat(node.Value); bok {
			return a == b, nil
		}
		return false, nil
	}

	switch expected := node.Value.(type) {
	case string:
		s, ok := actual.(string)
		return ok && s == expected, nil
	case bool:
		b, ok := actual.(bool)
		return ok && b == expected, nil
	default:
		return false, nil
	}
}

// evalRange checks Min <= value <= Max on a numeric feature.
func (e *Evaluator) evalRange(node *ast.Node, features Features) (bool, error) {
	if node.Field == "" {
		return false, fmt.Errorf("range node without field")
	}
	if node.Min == nil || node.Max == nil {
		return false, fmt.Errorf("range node missing bounds")
	}
	if *node.Min > *node.Max {
		return false, fmt.Errorf("range node min %v exceeds max %v", *node.Min, *node.Max)
	}

	actual, ok := features[node.Field]
	if !ok {
		return false, nil
	}
	value, ok := toFloat(actual)
	if !ok {
		// Non-numeric value under a range condition is a non-match.
		return false, nil
	}

	return value >= *node.Min && value <= *node.Max, nil
}

// toFloat coerces the numeric types that appear in feature maps (native
// values and values decoded from JSON) to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ConfidenceFunc estimates the confidence of applying a policy's action
// to the entity whose features are being evaluated. It is supplied by the
// caller so that selection stays decoupled from the estimator.
type ConfidenceFunc func(p *Policy) float64

// Selection is the outcome of selecting a policy for an entity.
type Selection struct {
	// Policy is the selected policy.
	Policy *Policy

	// Confidence is the estimated confidence that fired the policy.
	Confidence float64
}

// Select returns the first enabled policy, in (priority, id) order, whose
// condition matches the features and whose estimated confidence meets its
// threshold. Returns nil when no policy fires.
//
// The input slice is not modified; ordering is applied to a copy.
func (e *Evaluator) Select(policies []*Policy, features Features, confidence ConfidenceFunc) *Selection {
	ordered := make([]*Policy, len(policies))
	copy(ordered, policies)
	SortPolicies(ordered)

	for _, p := range ordered {
		if !p.Enabled {
			continue
		}
		if !e.Evaluate(p.Condition, features) {
			continue
		}

		estimate := confidence(p)
		if estimate < p.ConfidenceThreshold {
			e.logger.Debug("policy matched below threshold",
				"policy_id", p.ID,
				"confidence", estimate,
				"threshold", p.ConfidenceThreshold,
			)
			continue
		}

		return &Selection{Policy: p, Confidence: estimate}
	}

	return nil
}
