package engine

import (
	"sort"

	"mercator-hq/ganymede/pkg/policy/ast"
)

// Policy is an operator-authored rule: a condition over entity features,
// a named action to take when it matches, and a confidence threshold the
// estimated confidence must meet for the policy to fire.
type Policy struct {
	// ID uniquely identifies the policy. Ties in Priority are broken by
	// ID ascending.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable policy name.
	Name string `yaml:"name" json:"name"`

	// Enabled controls whether the policy participates in evaluation.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Priority orders evaluation; lower values are evaluated first.
	Priority int `yaml:"priority" json:"priority"`

	// Condition is the boolean expression tree evaluated against entity
	// features.
	Condition *ast.Node `yaml:"condition" json:"condition"`

	// Action is the named operation proposed when the policy fires
	// (e.g. "label", "archive", "quarantine").
	Action string `yaml:"action" json:"action"`

	// ConfidenceThreshold is the minimum estimated confidence required
	// for the policy to fire. It also serves as the base term of the
	// confidence estimate.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// SortPolicies orders policies in evaluation order: Priority ascending,
// ID ascending on ties. The slice is sorted in place.
func SortPolicies(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].ID < policies[j].ID
	})
}
