package ptypes

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy's identity-comparable cases. Callers
// match these with errors.Is; the cases that carry per-occurrence detail
// are typed structs below instead.
var (
	// ErrInvalidArgument is raised synchronously by the offending API
	// call (e.g. create(size) with size <= 0). It is never attached to
	// a Handle.
	ErrInvalidArgument = errors.New("procpool: invalid argument")

	// ErrAbortedWorker means the worker handling a task died before
	// producing a result, or was judged collateral damage of a peer's
	// death by the broadcast-death heuristic.
	ErrAbortedWorker = errors.New("procpool: worker aborted before producing a result")

	// ErrTerminatedPool means the pool was terminated before the handle
	// reached a terminal state.
	ErrTerminatedPool = errors.New("procpool: pool was terminated")

	// ErrOperationTimedOut means Handle.Get's deadline elapsed. The task
	// itself is left in flight; this error carries no pool-state change.
	ErrOperationTimedOut = errors.New("procpool: operation timed out waiting for result")
)

// UserError wraps a recoverable failure signalled by the task body
// itself. Detail is the error text the worker reported in the result's
// Message field.
type UserError struct {
	Detail string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("procpool: task raised a user error: %s", e.Detail)
}

// SerializationError covers both the submit-side case (a payload could
// not be encoded for dispatch) and the result-side case (a worker's
// result could not be decoded). Result.Err leaves Kind empty; the side
// that failed is carried as the leading "submit:", "input:", "output:"
// or "result:" tag of Detail.
type SerializationError struct {
	Kind   string // optional label, e.g. "submit", "input", "output"
	Detail string
}

func (e *SerializationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("procpool: serialization error: %s", e.Detail)
	}
	return fmt.Sprintf("procpool: serialization error (%s): %s", e.Kind, e.Detail)
}

// InvalidArgumentError wraps ErrInvalidArgument with the offending
// detail so callers get a useful message while errors.Is(err,
// ErrInvalidArgument) still works via Unwrap.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("procpool: invalid argument: %s", e.Detail)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}
