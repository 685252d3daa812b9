// Package ptypes holds the data model shared between the pool supervisor
// and worker processes: tasks, results, worker state, and the error
// taxonomy surfaced to callers.
package ptypes

// TaskID globally identifies a single dispatched unit of work. It is
// monotonic within a pool's lifetime and is the only key result frames
// are matched against — never position, never worker identity.
type TaskID uint64

// JobID groups related tasks, e.g. a submit_batch call mapping one
// callable over many inputs. It carries no scheduling meaning on its
// own; it exists so callers can correlate a batch of Handles.
type JobID uint64

// CallRequest is the decoded body of an inbound frame: a callable
// resolved by reference (since a function value cannot cross a process
// boundary) plus its encoded arguments. Workers decode a frame's body
// into a CallRequest, resolve CallableRef against their local registry,
// and invoke it with Args.
type CallRequest struct {
	CallableRef string `json:"callable_ref"`
	Args        []byte `json:"args"`
}
