package pool

import (
	"sync"

	"github.com/propool/procpool/pkg/ptypes"
)

// Terminate implements §4.6: pool_state -> Terminating, every Handle
// not yet Ready is completed with TerminatedPool, every worker is
// signalled and force-killed if it overstays its grace period, and the
// call returns within a bounded time regardless of worker state.
// Grounded on the teacher's Controller.Stop shutdown-ordering comments:
// stop accepting new work, drain and fail what's outstanding, stop
// workers, then stop the background loops — in that order, so nothing
// can observe a half-torn-down pool.
func (p *Pool) Terminate() error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		<-p.terminatedCh
		return nil
	}
	p.state = StateTerminating
	workers := make([]*workerRecord, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	// Stop accepting new dispatches and reclaim anything still queued.
	p.cancelDispatch()
	p.queue.close()
	drained := p.queue.drain()
	p.requeueMu.Lock()
	drained = append(drained, p.requeueHead...)
	p.requeueHead = nil
	p.requeueMu.Unlock()
	for _, item := range drained {
		item.handle.cancel(ptypes.ErrTerminatedPool)
	}

	// Fail every handle still in flight; no outcome is ever delivered
	// late to a handle Terminate has already resolved, since
	// Handle.complete/cancel are idempotent past the first transition.
	p.mu.Lock()
	for taskID, entry := range p.inFlight {
		entry.handle.cancel(ptypes.ErrTerminatedPool)
		delete(p.inFlight, taskID)
	}
	p.mu.Unlock()

	// Stop every worker concurrently, bounded by TerminateGrace each.
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *workerRecord) {
			defer wg.Done()
			p.stopWorker(w)
		}(w)
	}
	wg.Wait()

	p.closeOnce.Do(func() { close(p.stopCh) })
	p.loopWg.Wait()

	p.mu.Lock()
	p.state = StateTerminated
	p.mu.Unlock()
	close(p.terminatedCh)
	return nil
}

// Join blocks until the pool has reached StateTerminated.
func (p *Pool) Join() {
	<-p.terminatedCh
}
