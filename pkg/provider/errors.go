package provider

import (
	"errors"
	"fmt"
)

// ErrEntityNotFound indicates the requested entity does not exist.
var ErrEntityNotFound = errors.New("entity not found")

// ProviderError wraps a downstream read/execute failure. A provider error
// aborts work on the affected entity only; batch operations continue with
// the remaining entities.
type ProviderError struct {
	// Provider is the name of the provider that failed.
	Provider string

	// Op is the operation that failed ("get_entity", "query_aggregate",
	// "execute_action").
	Op string

	// EntityID is the entity the operation concerned, if any.
	EntityID string

	// Err is the underlying error.
	Err error

	// Retryable reports whether retrying the same call may succeed
	// (timeouts, transient server errors). Not-found and validation
	// failures are not retryable.
	Retryable bool
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("provider %q %s failed for entity %q: %v", e.Provider, e.Op, e.EntityID, e.Err)
	}
	return fmt.Sprintf("provider %q %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
