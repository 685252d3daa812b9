package pool

import (
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/propool/procpool/pkg/ptypes"
	"github.com/propool/procpool/pkg/wireframe"
)

// workerRecord is the Go rendering of §3's Worker record: a child
// process plus its inbound/outbound channels, sentinel, generation, and
// state. slot is a stable identity that survives respawn (generation
// changes; slot does not), so frame and exit events can always be
// attributed to the right map entry even while the worker slice is
// being resized elsewhere.
type workerRecord struct {
	slot       int
	generation ptypes.Generation

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	state       ptypes.WorkerState
	currentTask ptypes.TaskID
	lastIdleAt  time.Time

	exited  chan struct{}
	waitErr error
}

// deadlineWriter is satisfied by the *os.File StdinPipe returns on
// platforms where pipe write deadlines are supported.
type deadlineWriter interface {
	SetWriteDeadline(time.Time) error
}

// spawnWorker starts one worker process for the given stable slot and
// generation. The caller is responsible for starting readLoop and
// sentinelLoop against the returned record.
func spawnWorker(factory func() *exec.Cmd, slot int, generation ptypes.Generation) (*workerRecord, error) {
	cmd := factory()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	wr := &workerRecord{
		slot:       slot,
		generation: generation,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		state:      ptypes.StateIdle,
		lastIdleAt: time.Now(),
		exited:     make(chan struct{}),
	}

	go func() {
		wr.waitErr = cmd.Wait()
		close(wr.exited)
	}()

	return wr, nil
}

// sendFrame writes a tagged frame to the worker's inbound channel,
// bounding the write with a short deadline so a dead worker cannot
// block the dispatcher forever (§5 deadlock-avoidance rule (b)).
func (w *workerRecord) sendFrame(taskID uint64, body []byte, timeout time.Duration) error {
	if dw, ok := w.stdin.(deadlineWriter); ok && timeout > 0 {
		_ = dw.SetWriteDeadline(time.Now().Add(timeout))
		defer dw.SetWriteDeadline(time.Time{})
	}
	return wireframe.WriteTaggedFrame(w.stdin, taskID, body)
}

// requestExit sends a termination signal and lets the worker exit on
// its own terms (§6: workers flush any in-progress outbound frame
// before exiting in response).
func (w *workerRecord) requestExit() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// forceKill is the fallback when a worker ignores requestExit within
// the grace period (§6: "the supervisor must tolerate workers that
// ignore this and die silently").
func (w *workerRecord) forceKill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

func (w *workerRecord) closeChannels() {
	_ = w.stdin.Close()
	_ = w.stdout.Close()
}
