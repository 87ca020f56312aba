package approval

import (
	"fmt"

	"mercator-hq/ganymede/pkg/storage"
)

// ErrConflict indicates the proposal was already decided by a concurrent
// caller. The losing decision has no effect: no execution, no audit, no
// learner update.
var ErrConflict = storage.ErrConflict

// ExecutionError indicates a proposal was approved but the provider
// failed to execute the action. The proposal stays approved for manual
// follow-up; there is no automatic retry.
type ExecutionError struct {
	// ProposalID is the approved proposal whose execution failed.
	ProposalID string

	// Action is the action that failed.
	Action string

	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %q failed for proposal %s: %v", e.Action, e.ProposalID, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
