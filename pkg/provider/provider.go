package provider

import (
	"context"
	"time"
)

// Entity is a single unit of work the engine decides about (a message, a
// document, a record). Features is a flat map of provider-supplied
// signals; well-known keys are defined in the features package.
type Entity struct {
	// ID uniquely identifies the entity within the provider.
	ID string `json:"id"`

	// Features is the flat feature map used for policy evaluation and
	// feature extraction.
	Features map[string]any `json:"features"`
}

// AggregateQuery selects a daily aggregate for an entity dimension.
type AggregateQuery struct {
	// Dimension is the aggregation key (e.g. "sender_domain").
	Dimension string `json:"dimension"`

	// Value is the dimension value to aggregate over.
	Value string `json:"value"`

	// Day is the UTC day the aggregate covers.
	Day time.Time `json:"day"`
}

// Aggregate is a daily aggregate row.
type Aggregate struct {
	// Count is the number of entities in the aggregate.
	Count int64 `json:"count"`

	// Ratio is the provider-computed ratio for the dimension (e.g. the
	// share of entities in the bucket that were archived unread).
	Ratio float64 `json:"ratio"`
}

// ExecStats reports what an action execution did.
type ExecStats struct {
	// RowsAffected is the number of rows/objects the action touched.
	RowsAffected int64 `json:"rows_affected"`

	// Duration is how long the provider took to execute the action.
	Duration time.Duration `json:"duration"`
}

// Provider is the uniform contract for reading entity features and
// executing named actions. Implementations must respect context
// cancellation.
type Provider interface {
	// GetEntity reads a single entity's features.
	GetEntity(ctx context.Context, entityID string) (*Entity, error)

	// QueryDailyAggregate reads a daily aggregate.
	QueryDailyAggregate(ctx context.Context, q AggregateQuery) (*Aggregate, error)

	// ExecuteAction executes a named action for an entity and reports
	// execution statistics. This is the only mutating call in the
	// contract.
	ExecuteAction(ctx context.Context, entityID, action string, params map[string]any) (*ExecStats, error)

	// Name returns the provider's configured name.
	Name() string
}
