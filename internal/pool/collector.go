package pool

import (
	"time"

	"github.com/propool/procpool/pkg/ptypes"
)

// resultLoop is the merged Result Collector + Sentinel Monitor of §4.4
// and §4.5, running as one goroutine. True multiplexed select over a
// dynamic set of worker channels has no direct Go equivalent, so each
// worker's outbound reader and sentinel fan their events into two
// shared channels (frameCh, exitCh) and this loop selects over those —
// the idiomatic Go rendering of "watch all workers' outbound channels
// plus sentinels simultaneously" (see DESIGN.md's Open Question
// decision on this merger).
func (p *Pool) resultLoop() {
	defer p.loopWg.Done()
	for {
		select {
		case fe := <-p.frameCh:
			p.handleFrameEvent(fe)
		case ee := <-p.exitCh:
			p.handleWorkerExit(ee)
		case <-p.stopCh:
			return
		}
	}
}

// handleFrameEvent implements §4.4: attribute the frame by task_id,
// complete the matching Handle, return the worker to Idle, and apply
// the stale-frame rule against both the worker's own generation and the
// in-flight entry's pinned generation.
func (p *Pool) handleFrameEvent(fe frameEvent) {
	p.mu.Lock()
	w, ok := p.workers[fe.slot]
	if !ok || w.generation != fe.generation {
		p.mu.Unlock() // stale: this slot has since been respawned
		return
	}

	taskID := ptypes.TaskID(fe.taskID)
	entry, ok := p.inFlight[taskID]
	if !ok || entry.generation != fe.generation {
		p.mu.Unlock() // stale or already resolved by a sentinel event
		return
	}

	delete(p.inFlight, taskID)
	w.state = ptypes.StateIdle
	w.lastIdleAt = time.Now()
	p.mu.Unlock()

	var wire ptypes.WireResult
	if err := p.codec.Decode(fe.body, &wire); err != nil {
		if p.metrics != nil {
			p.metrics.RecordSerializationError()
		}
		entry.handle.complete(ptypes.Result{
			TaskID:  taskID,
			Status:  ptypes.StatusSerializationError,
			Message: "result: " + err.Error(),
		})
		return
	}

	result := ptypes.FromWireResult(wire)
	if p.metrics != nil {
		switch result.Status {
		case ptypes.StatusOk:
			p.metrics.RecordCompleted(0)
		case ptypes.StatusUserError:
			p.metrics.RecordUserError()
		case ptypes.StatusSerializationError:
			p.metrics.RecordSerializationError()
		}
	}
	entry.handle.complete(result)
}

// handleWorkerExit implements §4.5: identify the victim, quiesce its
// slot, classify the death (clean exit vs in-flight vs suspected
// broadcast), and respawn.
func (p *Pool) handleWorkerExit(ee exitEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[ee.slot]
	if !ok || w.generation != ee.generation {
		return // already superseded by a respawn
	}

	if p.state != StateRunning {
		// Terminate already owns this worker's disposition and has
		// already resolved any in-flight handle; don't respawn.
		w.state = ptypes.StateDead
		return
	}

	wasBusy := w.state == ptypes.StateBusy
	deadTaskID := w.currentTask
	w.state = ptypes.StateDead

	now := time.Now()
	p.recentDeaths = append(p.recentDeaths, now)
	p.pruneRecentDeathsLocked(now)
	broadcastSuspected := len(p.recentDeaths) > 1

	if wasBusy {
		p.failInFlightLocked(deadTaskID, ee.generation)
	} else {
		p.logger.Info("procpool: worker exited while idle, respawning", "slot", ee.slot)
	}

	if broadcastSuspected {
		for slot, bw := range p.workers {
			if slot == ee.slot || bw.state != ptypes.StateBusy {
				continue
			}
			p.failInFlightLocked(bw.currentTask, bw.generation)
			bw.state = ptypes.StateDead
			bw.forceKill()
		}
	}

	inOrder := make(map[int]bool, len(p.order))
	for _, slot := range p.order {
		inOrder[slot] = true
	}
	for slot, dw := range p.workers {
		if dw.state != ptypes.StateDead {
			continue
		}
		if !inOrder[slot] {
			// This slot was pulled out of rotation by a shrink; its
			// drainVictim goroutine owns cleaning it up, not us.
			continue
		}
		respawnStart := time.Now()
		if err := p.respawnWorkerLocked(slot); err != nil {
			p.logger.Error("procpool: failed to respawn worker", "slot", slot, "error", err)
			continue
		}
		if p.metrics != nil {
			p.metrics.SetRecoveryTime(time.Since(respawnStart).Seconds())
		}
	}
}

// failInFlightLocked completes the Handle for taskID with WorkerLost,
// provided its in-flight entry still points at the given generation.
// Callers must hold p.mu.
func (p *Pool) failInFlightLocked(taskID ptypes.TaskID, generation ptypes.Generation) {
	entry, ok := p.inFlight[taskID]
	if !ok || entry.generation != generation {
		return
	}
	delete(p.inFlight, taskID)
	if p.metrics != nil {
		p.metrics.RecordAborted()
	}
	entry.handle.complete(ptypes.Result{
		TaskID: taskID,
		Status: ptypes.StatusWorkerLost,
	})
}

// pruneRecentDeathsLocked drops death timestamps older than the
// configured broadcast-death window. Callers must hold p.mu.
func (p *Pool) pruneRecentDeathsLocked(now time.Time) {
	cutoff := now.Add(-p.cfg.DeathWindow)
	kept := p.recentDeaths[:0]
	for _, t := range p.recentDeaths {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.recentDeaths = kept
}
