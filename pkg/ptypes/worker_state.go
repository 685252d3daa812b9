package ptypes

// WorkerState tracks where a worker record sits in the pool's view of
// its lifecycle. It mirrors the Job status enum style the teacher uses
// for its job state machine, applied here to worker slots instead.
type WorkerState string

const (
	// StateIdle means the worker is alive and waiting for a task.
	StateIdle WorkerState = "idle"
	// StateBusy means the worker has exactly one task in flight.
	StateBusy WorkerState = "busy"
	// StateDraining means a resize shrink has picked the worker for
	// removal and it has no task in flight; it will not receive a new
	// task and is about to be stopped.
	StateDraining WorkerState = "draining"
	// StateDead means the worker's sentinel has fired and no task may
	// be dispatched to this slot until it is respawned.
	StateDead WorkerState = "dead"
)

// Generation increments every time a worker slot is (re)spawned. It is
// attached to every frame and in-flight entry a worker produces so a
// late frame from a respawned slot can be told apart from the current
// occupant and discarded.
type Generation uint64
