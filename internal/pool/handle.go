package pool

import (
	"context"
	"sync"

	"github.com/propool/procpool/pkg/ptypes"
)

// HandleState is the three-state machine of §4.7: Pending transitions
// exactly once, to either Ready or Cancelled.
type HandleState string

const (
	HandlePending   HandleState = "pending"
	HandleReady     HandleState = "ready"
	HandleCancelled HandleState = "cancelled"
)

// Handle is the per-submission future callers block on. Get is safe to
// call from multiple goroutines; all observers see the same outcome,
// since completion only ever closes the done channel once.
type Handle struct {
	taskID ptypes.TaskID

	mu         sync.Mutex
	state      HandleState
	result     ptypes.Result
	cancelErr  error
	done       chan struct{}
}

func newHandle(taskID ptypes.TaskID) *Handle {
	return &Handle{
		taskID: taskID,
		state:  HandlePending,
		done:   make(chan struct{}),
	}
}

// TaskID returns the id this handle was created for.
func (h *Handle) TaskID() ptypes.TaskID {
	return h.taskID
}

// complete transitions Pending -> Ready(result). Called by the result
// loop, the sentinel monitor, or the dispatcher when encoding a task
// fails. Idempotent: a second call
// after the handle is already terminal is a silent no-op, which is
// what makes it safe for the dispatcher's write-failure retry path to
// leave a stale in-flight entry pointing at the same Handle (see
// dispatcher.go).
func (h *Handle) complete(result ptypes.Result) {
	h.mu.Lock()
	if h.state != HandlePending {
		h.mu.Unlock()
		return
	}
	h.result = result
	h.state = HandleReady
	h.mu.Unlock()
	close(h.done)
}

// cancel transitions Pending -> Cancelled with the given reason
// (ErrTerminatedPool is the only reason the pool itself produces).
func (h *Handle) cancel(err error) {
	h.mu.Lock()
	if h.state != HandlePending {
		h.mu.Unlock()
		return
	}
	h.cancelErr = err
	h.state = HandleCancelled
	h.mu.Unlock()
	close(h.done)
}

// State returns the handle's current state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Get blocks until the handle reaches a terminal state or ctx is done.
// A ctx deadline expiring returns ErrOperationTimedOut and leaves the
// task in flight — this is not a state transition, per §5.
func (h *Handle) Get(ctx context.Context) (ptypes.Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ptypes.Result{}, ptypes.ErrOperationTimedOut
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case HandleReady:
		return h.result, h.result.Err()
	case HandleCancelled:
		return ptypes.Result{}, h.cancelErr
	default:
		// unreachable: done is only closed after state leaves Pending
		return ptypes.Result{}, nil
	}
}
