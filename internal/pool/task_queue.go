package pool

import "context"

// taskQueue is the bounded in-memory FIFO of §4.2: buffered channel
// send blocks submitters on full, buffered channel receive blocks the
// dispatcher on empty, and Drain yields everything still buffered
// without blocking — used once during Terminate.
type taskQueue struct {
	ch chan *queuedTask
}

func newTaskQueue(capacity int) *taskQueue {
	return &taskQueue{ch: make(chan *queuedTask, capacity)}
}

// pop blocks until a task is available, the queue is closed (ok=false),
// or ctx is cancelled (ok=false).
func (q *taskQueue) pop(ctx context.Context) (t *queuedTask, ok bool) {
	select {
	case t, ok = <-q.ch:
		return t, ok
	case <-ctx.Done():
		return nil, false
	}
}

// drain atomically removes and returns every task currently buffered,
// without blocking. Used by Terminate to fail every still-pending task.
func (q *taskQueue) drain() []*queuedTask {
	var drained []*queuedTask
	for {
		select {
		case t, ok := <-q.ch:
			if !ok {
				return drained
			}
			drained = append(drained, t)
		default:
			return drained
		}
	}
}

func (q *taskQueue) close() {
	close(q.ch)
}
