package executor

import "errors"

// ErrBudgetExceeded indicates the request's time or operation budget was
// exhausted while enforcement mode is "abort".
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrActionsDisabled indicates an ExecuteAction call was blocked by the
// mutation gate: either dry-run is on or actions are not allowed. The
// provider is never reached.
var ErrActionsDisabled = errors.New("actions disabled")
