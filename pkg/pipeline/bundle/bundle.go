package bundle

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a bundle.
//
// Lifecycle: created → proposed → approved → canary → active. A canary
// that regresses is retired by rollback.
type Status string

const (
	StatusCreated  Status = "created"
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusCanary   Status = "canary"
	StatusActive   Status = "active"
	StatusRetired  Status = "retired"
)

// Payload is the trained configuration a bundle carries.
type Payload struct {
	// Strategy names the trainer that produced this payload.
	Strategy string `json:"strategy"`

	// Thresholds are named decision thresholds.
	Thresholds map[string]float64 `json:"thresholds"`

	// FeatureWeights are the trained per-feature weights.
	FeatureWeights map[string]float64 `json:"feature_weights"`

	// ExampleCount is the number of examples the payload was fit on.
	ExampleCount int `json:"example_count"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`
}

// Bundle is one versioned configuration bundle for an agent.
type Bundle struct {
	ID            string    `json:"id"`
	Agent         string    `json:"agent"`
	Status        Status    `json:"status"`
	Payload       *Payload  `json:"payload"`
	CanaryPercent int       `json:"canary_percent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Diff renders a human-readable comparison of a new payload against the
// current one. current may be nil (first bundle for the agent).
func Diff(current, next *Payload) string {
	var b strings.Builder
	if current == nil {
		fmt.Fprintf(&b, "new payload (%s, %d examples), no active payload to compare\n",
			next.Strategy, next.ExampleCount)
		current = &Payload{}
	} else {
		fmt.Fprintf(&b, "payload %s (%d examples) vs active %s (%d examples)\n",
			next.Strategy, next.ExampleCount, current.Strategy, current.ExampleCount)
	}

	diffMap(&b, "threshold", current.Thresholds, next.Thresholds)
	diffMap(&b, "weight", current.FeatureWeights, next.FeatureWeights)
	return b.String()
}

func diffMap(b *strings.Builder, kind string, current, next map[string]float64) {
	keys := make(map[string]bool, len(current)+len(next))
	for k := range current {
		keys[k] = true
	}
	for k := range next {
		keys[k] = true
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, k := range ordered {
		before, hadBefore := current[k]
		after, hasAfter := next[k]
		switch {
		case !hadBefore:
			fmt.Fprintf(b, "  + %s %s = %.4f\n", kind, k, after)
		case !hasAfter:
			fmt.Fprintf(b, "  - %s %s (was %.4f)\n", kind, k, before)
		case before != after:
			fmt.Fprintf(b, "  ~ %s %s: %.4f -> %.4f\n", kind, k, before, after)
		}
	}
}
