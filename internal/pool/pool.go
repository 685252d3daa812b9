package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/propool/procpool/internal/poolmetrics"
	"github.com/propool/procpool/pkg/codec"
	"github.com/propool/procpool/pkg/ptypes"
	"github.com/propool/procpool/pkg/wireframe"
)

// Pool is the supervisor: the public API of §4.6, owning the worker
// records, the task queue, and the in-flight map, and orchestrating
// resize, terminate, and recovery.
type Pool struct {
	cfg     Config
	codec   codec.Codec
	logger  *slog.Logger
	metrics *poolmetrics.Collector

	mu         sync.Mutex
	workers    map[int]*workerRecord
	order      []int // stable round-robin traversal order of live slots
	rrPos      int
	nextSlot   int
	targetSize int
	state      State
	inFlight   map[ptypes.TaskID]inFlightEntry

	queue       *taskQueue
	requeueMu   sync.Mutex
	requeueHead []*queuedTask

	taskSeq uint64
	jobSeq  uint64

	frameCh chan frameEvent
	exitCh  chan exitEvent

	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
	stopCh         chan struct{}
	closeOnce      sync.Once
	loopWg         sync.WaitGroup

	recentDeaths []time.Time

	terminatedCh chan struct{}
}

// New spawns cfg.Size workers and starts the dispatcher and result
// loop. Grounded on the teacher's controller.NewController +
// Controller.Start sequencing (construct collaborators, then launch
// background loops).
func New(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, &ptypes.InvalidArgumentError{Detail: "pool size must be >= 1"}
	}
	if cfg.Command == nil {
		return nil, &ptypes.InvalidArgumentError{Detail: "Command factory is required"}
	}
	cfg.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:            cfg,
		codec:          cfg.Codec,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		workers:        make(map[int]*workerRecord, cfg.Size),
		targetSize:     cfg.Size,
		state:          StateRunning,
		inFlight:       make(map[ptypes.TaskID]inFlightEntry),
		queue:          newTaskQueue(cfg.QueueCapacity),
		frameCh:        make(chan frameEvent, cfg.Size*2+8),
		exitCh:         make(chan exitEvent, cfg.Size+8),
		dispatchCtx:    ctx,
		cancelDispatch: cancel,
		stopCh:         make(chan struct{}),
		terminatedCh:   make(chan struct{}),
	}

	for i := 0; i < cfg.Size; i++ {
		if _, err := p.spawnWorkerLocked(); err != nil {
			p.cancelDispatch()
			return nil, fmt.Errorf("procpool: spawning worker %d: %w", i, err)
		}
	}

	p.loopWg.Add(2)
	go p.dispatchLoop()
	go p.resultLoop()

	return p, nil
}

// spawnWorkerLocked allocates a fresh stable slot and starts its
// process plus its reader/sentinel fan-in goroutines. Callers must hold
// p.mu; it is also safe to call before any goroutine can observe p
// (construction time).
func (p *Pool) spawnWorkerLocked() (*workerRecord, error) {
	slot := p.nextSlot
	p.nextSlot++
	wr, err := spawnWorker(p.cfg.Command, slot, 1)
	if err != nil {
		return nil, err
	}
	p.workers[slot] = wr
	p.order = append(p.order, slot)
	go p.readLoop(wr)
	go p.sentinelLoop(wr)
	return wr, nil
}

// respawnWorkerLocked replaces a dead slot's process in place,
// incrementing its generation so stale frames and exit signals from the
// previous occupant are rejected by the stale-frame rule.
func (p *Pool) respawnWorkerLocked(slot int) error {
	nextGen := p.workers[slot].generation + 1
	wr, err := spawnWorker(p.cfg.Command, slot, nextGen)
	if err != nil {
		return err
	}
	p.workers[slot] = wr
	go p.readLoop(wr)
	go p.sentinelLoop(wr)
	return nil
}

func (p *Pool) readLoop(wr *workerRecord) {
	for {
		taskID, body, err := wireframe.ReadTaggedFrame(wr.stdout)
		if err != nil {
			return // sentinelLoop reports the death; nothing more to do here.
		}
		select {
		case p.frameCh <- frameEvent{slot: wr.slot, generation: wr.generation, taskID: taskID, body: body}:
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) sentinelLoop(wr *workerRecord) {
	<-wr.exited
	select {
	case p.exitCh <- exitEvent{slot: wr.slot, generation: wr.generation}:
	case <-p.stopCh:
	}
}

// Submit enqueues a task for dispatch and returns its Handle
// immediately, per §4.6. callableRef is resolved against the worker's
// registry; args is encoded by the dispatcher at send time, not here,
// so a hostile codec can be exercised as a genuine dispatch failure.
func (p *Pool) Submit(ctx context.Context, callableRef string, args any) (*Handle, error) {
	jobID := ptypes.JobID(atomic.AddUint64(&p.jobSeq, 1))
	return p.submitOne(ctx, jobID, callableRef, args)
}

// SubmitBatch submits len(argsList) tasks sharing one JobID, returning
// handles positionally paired with the inputs. It guarantees
// input/output pairing, not completion order, per §5.
func (p *Pool) SubmitBatch(ctx context.Context, callableRef string, argsList []any) ([]*Handle, error) {
	jobID := ptypes.JobID(atomic.AddUint64(&p.jobSeq, 1))
	handles := make([]*Handle, len(argsList))
	for i, args := range argsList {
		h, err := p.submitOne(ctx, jobID, callableRef, args)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	return handles, nil
}

func (p *Pool) submitOne(ctx context.Context, jobID ptypes.JobID, callableRef string, args any) (*Handle, error) {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil, ptypes.ErrTerminatedPool
	}
	p.mu.Unlock()

	taskID := ptypes.TaskID(atomic.AddUint64(&p.taskSeq, 1))
	h := newHandle(taskID)
	item := &queuedTask{jobID: jobID, taskID: taskID, callableRef: callableRef, args: args, handle: h}

	// The same benign race the teacher documents on worker_pool.go's
	// Submit: a Stop (here, Terminate) racing a Submit is resolved by
	// selecting on both the queue and the stop signal, never by
	// checking state and pushing as two separate steps.
	select {
	case p.queue.ch <- item:
		if p.metrics != nil {
			p.metrics.RecordSubmit()
		}
		return h, nil
	case <-p.stopCh:
		return nil, ptypes.ErrTerminatedPool
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the pool's current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TargetSize returns the pool's current configured worker count.
func (p *Pool) TargetSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetSize
}

// WorkerCounts reports how many workers are currently in each state,
// for metrics and tests. Draining is reported separately from Idle so
// a caller can tell "about to be removed by a shrink" apart from
// "ready for the next task".
func (p *Pool) WorkerCounts() (idle, busy, draining, dead int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		switch w.state {
		case ptypes.StateIdle:
			idle++
		case ptypes.StateBusy:
			busy++
		case ptypes.StateDraining:
			draining++
		case ptypes.StateDead:
			dead++
		}
	}
	return idle, busy, draining, dead
}
