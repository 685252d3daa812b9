package pool

import (
	"fmt"
	"time"

	"github.com/propool/procpool/pkg/ptypes"
)

// Resize implements §4.6: growing preserves every existing worker;
// shrinking picks the most recently idle victims immediately and pulls
// their slots out of p.order right away, so pickIdleWorkerLocked never
// routes a new task to one — no pool-wide pause is needed. An Idle
// victim is marked Draining (reported separately from Idle by
// WorkerCounts and GET /status) at once; a victim still finishing its
// last task stays Busy until that task resolves, is then marked
// Draining, and is stopped. Concurrent submissions during resize are
// accepted and queued normally.
func (p *Pool) Resize(newSize int) error {
	if newSize < 1 {
		return &ptypes.InvalidArgumentError{Detail: "size must be >= 1"}
	}

	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return ptypes.ErrTerminatedPool
	}
	current := len(p.order)
	if newSize == current {
		p.mu.Unlock()
		return nil
	}
	if newSize > current {
		toAdd := newSize - current
		for i := 0; i < toAdd; i++ {
			if _, err := p.spawnWorkerLocked(); err != nil {
				p.mu.Unlock()
				return fmt.Errorf("procpool: growing pool: %w", err)
			}
		}
		p.targetSize = newSize
		p.mu.Unlock()
		return nil
	}

	// Shrink path: pick victims now and remove them from the
	// round-robin order immediately, while still holding the lock.
	toRemove := current - newSize
	victims := p.pickShrinkVictimsLocked(toRemove)
	victimSlots := make(map[int]bool, len(victims))
	for _, v := range victims {
		victimSlots[v.slot] = true
		if v.state == ptypes.StateIdle {
			v.state = ptypes.StateDraining
		}
	}
	newOrder := p.order[:0:0]
	for _, slot := range p.order {
		if !victimSlots[slot] {
			newOrder = append(newOrder, slot)
		}
	}
	p.order = newOrder
	p.targetSize = newSize
	p.mu.Unlock()

	for _, v := range victims {
		p.drainVictim(v)
	}

	p.logger.Warn("procpool: pool shrunk", "from", current, "to", newSize)
	return nil
}

// drainVictim waits for a busy victim to finish its in-flight task
// (handleFrameEvent or handleWorkerExit will move it out of Busy),
// marks it Draining, then stops it and removes its slot. The victim is
// already out of p.order, so it can't be picked for new work while it
// finishes up.
func (p *Pool) drainVictim(v *workerRecord) {
	for {
		p.mu.Lock()
		cur, ok := p.workers[v.slot]
		if !ok || cur.generation != v.generation || cur.state != ptypes.StateBusy {
			if ok && cur.generation == v.generation && cur.state != ptypes.StateDead {
				cur.state = ptypes.StateDraining
			}
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}

	p.mu.Lock()
	if cur, ok := p.workers[v.slot]; ok && cur.generation == v.generation {
		delete(p.workers, v.slot)
	}
	p.mu.Unlock()

	// stopWorker is safe even if the process already exited on its own
	// (v.exited is already closed, so the select below returns at once).
	p.stopWorker(v)
}

// stopWorker requests a graceful exit, then force-kills after the
// configured grace period, then closes its channels. Run outside the
// supervisor lock since it can block.
func (p *Pool) stopWorker(w *workerRecord) {
	w.requestExit()
	select {
	case <-w.exited:
	case <-time.After(p.cfg.TerminateGrace):
		w.forceKill()
		<-w.exited
	}
	w.closeChannels()
}
