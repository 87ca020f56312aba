package ast

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the variant of a condition node.
// The set is closed: parsers must reject unknown kinds.
type Kind string

const (
	// KindEq matches when the field's value equals the expected value.
	KindEq Kind = "eq"

	// KindExists matches when the field is present, regardless of value.
	KindExists Kind = "exists"

	// KindAll matches when every child matches (logical AND).
	KindAll Kind = "all"

	// KindAny matches when at least one child matches (logical OR).
	KindAny Kind = "any"

	// KindNot matches when its single child does not match.
	KindNot Kind = "not"

	// KindRange matches when the field's numeric value is within
	// [Min, Max] inclusive.
	KindRange Kind = "range"
)

// Node is a single node in a condition tree.
//
// Which fields are meaningful depends on Kind:
//   - eq:     Field, Value
//   - exists: Field
//   - all:    Children
//   - any:    Children
//   - not:    Children (exactly one)
//   - range:  Field, Min, Max
//
// Nodes marshal to and from JSON; a round-trip through JSON yields a tree
// that evaluates identically.
type Node struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Children []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
}

// Eq returns an equality condition on field.
func Eq(field string, value any) *Node {
	return &Node{Kind: KindEq, Field: field, Value: value}
}

// Exists returns a presence condition on field.
func Exists(field string) *Node {
	return &Node{Kind: KindExists, Field: field}
}

// All returns a conjunction of children.
func All(children ...*Node) *Node {
	return &Node{Kind: KindAll, Children: children}
}

// Any returns a disjunction of children.
func Any(children ...*Node) *Node {
	return &Node{Kind: KindAny, Children: children}
}

// Not returns the negation of child.
func Not(child *Node) *Node {
	return &Node{Kind: KindNot, Children: []*Node{child}}
}

// Range returns an inclusive numeric range condition on field.
func Range(field string, min, max float64) *Node {
	return &Node{Kind: KindRange, Field: field, Min: &min, Max: &max}
}

// Validate checks the structural well-formedness of the tree rooted at n.
// It does not evaluate anything. A nil node is invalid.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("condition node is nil")
	}

	switch n.Kind {
	case KindEq:
		if n.Field == "" {
			return fmt.Errorf("eq node requires a field")
		}

	case KindExists:
		if n.Field == "" {
			return fmt.Errorf("exists node requires a field")
		}

	case KindAll, KindAny:
		if len(n.Children) == 0 {
			return fmt.Errorf("%s node requires at least one child", n.Kind)
		}
		for i, child := range n.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s child %d: %w", n.Kind, i, err)
			}
		}

	case KindNot:
		if len(n.Children) != 1 {
			return fmt.Errorf("not node requires exactly one child, got %d", len(n.Children))
		}
		if err := n.Children[0].Validate(); err != nil {
			return fmt.Errorf("not child: %w", err)
		}

	case KindRange:
		if n.Field == "" {
			return fmt.Errorf("range node requires a field")
		}
		if n.Min == nil || n.Max == nil {
			return fmt.Errorf("range node requires both min and max")
		}
		if *n.Min > *n.Max {
			return fmt.Errorf("range node min %v exceeds max %v", *n.Min, *n.Max)
		}

	default:
		return fmt.Errorf("unknown condition kind: %q", n.Kind)
	}

	return nil
}

// Marshal serializes the tree to JSON.
func (n *Node) Marshal() ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition: %w", err)
	}
	return data, nil
}

// Parse deserializes a condition tree from JSON and validates it.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse condition: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	return &n, nil
}

// String returns a compact human-readable rendering of the tree,
// used in policy diffs and rationale narratives.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}

	switch n.Kind {
	case KindEq:
		return fmt.Sprintf("%s == %v", n.Field, n.Value)
	case KindExists:
		return fmt.Sprintf("exists(%s)", n.Field)
	case KindAll, KindAny:
		parts := make([]string, len(n.Children))
		for i, child := range n.Children {
			parts[i] = child.String()
		}
		return fmt.Sprintf("%s(%s)", n.Kind, strings.Join(parts, ", "))
	case KindNot:
		if len(n.Children) == 1 {
			return fmt.Sprintf("not(%s)", n.Children[0].String())
		}
		return "not(<malformed>)"
	case KindRange:
		min, max := "-inf", "+inf"
		if n.Min != nil {
			min = fmt.Sprintf("%g", *n.Min)
		}
		if n.Max != nil {
			max = fmt.Sprintf("%g", *n.Max)
		}
		return fmt.Sprintf("%s in [%s, %s]", n.Field, min, max)
	default:
		return fmt.Sprintf("<unknown kind %q>", n.Kind)
	}
}
