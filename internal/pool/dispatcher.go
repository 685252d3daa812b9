package pool

import (
	"sync/atomic"
	"time"

	"github.com/propool/procpool/pkg/ptypes"
)

// dispatchLoop is the single background activity of §4.3: pop the next
// task, pick an Idle worker round-robin, mark it Busy, and attempt to
// write the framed task — all without holding the supervisor lock
// across the write itself.
func (p *Pool) dispatchLoop() {
	defer p.loopWg.Done()
	for {
		item, ok := p.popNext()
		if !ok {
			return
		}
		p.dispatchOne(item)
	}
}

// popNext checks the head-of-line requeue slice (populated by write
// failures, see sendTask) before falling back to the ordinary FIFO.
func (p *Pool) popNext() (*queuedTask, bool) {
	p.requeueMu.Lock()
	if len(p.requeueHead) > 0 {
		t := p.requeueHead[0]
		p.requeueHead = p.requeueHead[1:]
		p.requeueMu.Unlock()
		return t, true
	}
	p.requeueMu.Unlock()
	return p.queue.pop(p.dispatchCtx)
}

// dispatchOne assigns item to the next Idle worker, waiting (polling a
// short interval, scaled down from the teacher's 1s administrative
// ticker since this is purely a short administrative wait) if no worker
// in the round-robin order is currently Idle.
func (p *Pool) dispatchOne(item *queuedTask) {
	for {
		p.mu.Lock()
		if p.state != StateRunning {
			p.mu.Unlock()
			item.handle.cancel(ptypes.ErrTerminatedPool)
			return
		}
		slot, ok := p.pickIdleWorkerLocked()
		if ok {
			w := p.workers[slot]
			w.state = ptypes.StateBusy
			w.currentTask = item.taskID
			gen := w.generation
			p.inFlight[item.taskID] = inFlightEntry{generation: gen, handle: item.handle}
			p.mu.Unlock()
			p.sendTask(w, slot, gen, item)
			return
		}
		p.mu.Unlock()

		select {
		case <-p.dispatchCtx.Done():
			return
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// pickIdleWorkerLocked returns the next Idle worker slot in round-robin
// order. Callers must hold p.mu. A shrink victim is pulled out of
// p.order the moment it's chosen (see resize.go), so it is never a
// candidate here even while it finishes its last task.
func (p *Pool) pickIdleWorkerLocked() (int, bool) {
	if len(p.order) == 0 {
		return 0, false
	}
	for i := 0; i < len(p.order); i++ {
		idx := (p.rrPos + i) % len(p.order)
		slot := p.order[idx]
		w, ok := p.workers[slot]
		if !ok {
			continue
		}
		if w.state == ptypes.StateIdle {
			p.rrPos = (idx + 1) % len(p.order)
			return slot, true
		}
	}
	return 0, false
}

// sendTask performs the dispatcher's own serialization step (§4.3
// outcomes 2-4) outside the supervisor lock. args and the callable
// reference are encoded into the wire body here, at dispatch time —
// not at Submit time — so a hostile codec produces a genuine dispatch
// failure rather than a synchronous Submit error.
func (p *Pool) sendTask(w *workerRecord, slot int, gen ptypes.Generation, item *queuedTask) {
	argsBytes, err := p.codec.Encode(item.args)
	if err == nil {
		var body []byte
		body, err = p.codec.Encode(ptypes.CallRequest{CallableRef: item.callableRef, Args: argsBytes})
		if err == nil {
			if writeErr := w.sendFrame(uint64(item.taskID), body, p.cfg.DispatchWriteTimeout); writeErr != nil {
				p.handleDispatchWriteFailure(item)
				return
			}
			if p.metrics != nil {
				p.metrics.RecordDispatch()
			}
			return
		}
	}

	// Outcome 2: encoding failed without touching the worker at all —
	// safe to revert the slot straight back to Idle.
	p.mu.Lock()
	delete(p.inFlight, item.taskID)
	if cur, ok := p.workers[slot]; ok && cur.generation == gen && cur.state == ptypes.StateBusy {
		cur.state = ptypes.StateIdle
		cur.lastIdleAt = time.Now()
	}
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordSerializationError()
	}
	item.handle.complete(ptypes.Result{
		TaskID:  item.taskID,
		Status:  ptypes.StatusSerializationError,
		Message: "submit: " + err.Error(),
	})
}

// handleDispatchWriteFailure implements §4.3 outcome 4: the write
// failed, most likely because the worker died mid-enqueue. The
// dispatcher does not itself judge the worker dead — the Sentinel
// Monitor owns that — so it leaves the worker's Busy/in-flight
// bookkeeping alone (the eventual exit event will resolve it, and
// Handle.complete's idempotence makes a double-resolution harmless) and
// requeues a fresh attempt, under a new task_id, at the head of the
// queue so the same Handle gets another chance on a different worker.
func (p *Pool) handleDispatchWriteFailure(item *queuedTask) {
	p.logger.Warn("procpool: dispatch write failed, requeuing", "task_id", item.taskID)
	retryID := ptypes.TaskID(p.nextTaskID())
	retry := &queuedTask{
		jobID:       item.jobID,
		taskID:      retryID,
		callableRef: item.callableRef,
		args:        item.args,
		handle:      item.handle,
	}
	p.requeueMu.Lock()
	p.requeueHead = append([]*queuedTask{retry}, p.requeueHead...)
	p.requeueMu.Unlock()
}

func (p *Pool) nextTaskID() uint64 {
	return atomic.AddUint64(&p.taskSeq, 1)
}

// pickShrinkVictimsLocked returns the n workers in p.order with the most
// recent lastIdleAt. Busy workers are candidates too (ranked by when
// they last became Idle); it does not wait for Busy workers to finish
// before choosing. Callers must hold p.mu.
func (p *Pool) pickShrinkVictimsLocked(n int) []*workerRecord {
	candidates := make([]*workerRecord, 0, len(p.workers))
	for _, slot := range p.order {
		if w, ok := p.workers[slot]; ok {
			candidates = append(candidates, w)
		}
	}
	// Sort by lastIdleAt descending (most recent first) with a simple
	// insertion sort — pool sizes are small administrative quantities.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].lastIdleAt.After(candidates[j-1].lastIdleAt); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
