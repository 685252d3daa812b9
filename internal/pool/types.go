// Package pool implements the supervisor: task queue, worker records,
// dispatcher, result collector, sentinel monitor, and the resize /
// terminate / join lifecycle that lets the pool survive arbitrary
// worker failures without being torn down.
//
// Grounded primarily on the teacher's internal/controller.Controller
// (dispatch/result/timeout loop shape, Stop() shutdown ordering) and on
// the RoadRunner StaticPool reference file (Command factory, watcher,
// error-kind-driven worker disposition) for the OS-process mechanics
// the teacher's own goroutine-based worker pool never needed.
package pool

import (
	"os/exec"
	"time"

	"github.com/propool/procpool/internal/poolmetrics"
	"github.com/propool/procpool/pkg/codec"
	"github.com/propool/procpool/pkg/ptypes"
	"log/slog"
)

// State is the pool-wide lifecycle state.
type State string

const (
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateTerminated  State = "terminated"
)

// Config configures a new Pool. Command is required; every other field
// has a workable default applied by setDefaults.
type Config struct {
	// Size is the initial worker count. Must be >= 1.
	Size int

	// Command builds one *exec.Cmd per worker spawn (including
	// respawns). It must not reuse a *exec.Cmd across calls — exec.Cmd
	// is single-use. Grounded on RoadRunner's `Command func() *exec.Cmd`
	// worker factory.
	Command func() *exec.Cmd

	// Codec encodes/decodes values crossing the wire. Defaults to
	// codec.Default() (JSON) if nil.
	Codec codec.Codec

	// QueueCapacity bounds the task queue. Defaults to 1024.
	QueueCapacity int

	// DispatchWriteTimeout bounds how long the dispatcher waits for a
	// single frame write before concluding the worker may be dead.
	// Defaults to 2s.
	DispatchWriteTimeout time.Duration

	// DeathWindow is the window within which more than one worker
	// sentinel firing is treated as a suspected broadcast death.
	// Defaults to 100ms, matching the spec's default.
	DeathWindow time.Duration

	// TerminateGrace bounds how long Terminate waits for a worker to
	// exit after a termination signal before force-killing it.
	// Defaults to 2s.
	TerminateGrace time.Duration

	// Metrics is optional; when set, pool activity is recorded against it.
	Metrics *poolmetrics.Collector

	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Codec == nil {
		c.Codec = codec.Default()
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.DispatchWriteTimeout <= 0 {
		c.DispatchWriteTimeout = 2 * time.Second
	}
	if c.DeathWindow <= 0 {
		c.DeathWindow = 100 * time.Millisecond
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// inFlightEntry pins a Handle to the worker generation it was
// dispatched to, so a late frame or exit signal from a respawned slot
// can be told apart from the current occupant.
type inFlightEntry struct {
	generation ptypes.Generation
	handle     *Handle
}

// queuedTask is what actually rides the task queue: the logical request
// plus the Handle the caller is waiting on. CallableRef/Args are kept
// un-encoded until dispatch time, so a hostile codec can be exercised
// as a genuine dispatch-time failure (§4.3 outcome 2) rather than a
// synchronous Submit-time one.
type queuedTask struct {
	jobID       ptypes.JobID
	taskID      ptypes.TaskID
	callableRef string
	args        any
	handle      *Handle
}

// frameEvent is one decoded outbound frame fanned in from a worker's
// reader goroutine to the shared result loop.
type frameEvent struct {
	slot       int
	generation ptypes.Generation
	taskID     uint64
	body       []byte
}

// exitEvent is a worker sentinel (process exit) fanned in to the shared
// result loop.
type exitEvent struct {
	slot       int
	generation ptypes.Generation
}
