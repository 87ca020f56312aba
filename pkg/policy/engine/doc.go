// Package engine evaluates policy condition trees against entity features
// and selects the winning policy for an entity.
//
// Evaluation is pure: no side effects, no entity mutation. Malformed
// condition trees fail closed: treated as non-matching, never as a match
// and never as a fatal error. Policies are considered in ascending priority
// order with ties broken by id ascending; the first enabled policy whose
// condition matches and whose estimated confidence meets its threshold is
// selected.
package engine
