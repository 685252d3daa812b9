// Package workerproc is the worker side of the pool: the loop a worker
// process runs, reading framed tasks from its inbound channel,
// dispatching them through a registry.Registry, and writing framed
// results to its outbound channel. Grounded on the teacher's
// internal/worker.Worker.Run loop, translated from a channel range to
// a framed-stdio loop.
package workerproc

import (
	"errors"
	"io"
	"log/slog"

	"github.com/propool/procpool/pkg/codec"
	"github.com/propool/procpool/pkg/ptypes"
	"github.com/propool/procpool/pkg/registry"
	"github.com/propool/procpool/pkg/wireframe"
)

// Serve reads tasks from in and writes results to out until in is
// closed or a fatal (non-recoverable) error occurs. It never returns an
// error for a failed individual task — those become SerializationError
// or UserError result frames and the loop continues, exactly as §4.1
// requires. It returns nil on a clean EOF (the supervisor closed the
// channel, e.g. during terminate).
func Serve(in io.Reader, out io.Writer, reg *registry.Registry, c codec.Codec, logger *slog.Logger) error {
	if c == nil {
		c = codec.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	for {
		taskID, body, err := wireframe.ReadTaggedFrame(in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		result := handleFrame(taskID, body, reg, c, logger)
		if werr := writeResult(out, result, c); werr != nil {
			logger.Error("workerproc: failed to write result frame", "task_id", taskID, "error", werr)
			return werr
		}
	}
}

func handleFrame(taskID uint64, body []byte, reg *registry.Registry, c codec.Codec, logger *slog.Logger) ptypes.Result {
	var req ptypes.CallRequest
	if err := c.Decode(body, &req); err != nil {
		logger.Warn("workerproc: failed to decode task payload", "task_id", taskID, "error", err)
		return ptypes.Result{
			TaskID:  ptypes.TaskID(taskID),
			Status:  ptypes.StatusSerializationError,
			Message: "input: " + err.Error(),
		}
	}

	handler, err := reg.Lookup(req.CallableRef)
	if err != nil {
		return ptypes.Result{
			TaskID:  ptypes.TaskID(taskID),
			Status:  ptypes.StatusUserError,
			Message: err.Error(),
		}
	}

	payload, err := handler(req.Args)
	if err != nil {
		var serErr *ptypes.SerializationError
		if errors.As(err, &serErr) {
			return ptypes.Result{
				TaskID:  ptypes.TaskID(taskID),
				Status:  ptypes.StatusSerializationError,
				Message: serErr.Error(),
			}
		}
		return ptypes.Result{
			TaskID:  ptypes.TaskID(taskID),
			Status:  ptypes.StatusUserError,
			Message: err.Error(),
		}
	}

	return ptypes.Result{
		TaskID:  ptypes.TaskID(taskID),
		Status:  ptypes.StatusOk,
		Payload: payload,
	}
}

func writeResult(out io.Writer, result ptypes.Result, c codec.Codec) error {
	body, err := c.Encode(result.ToWire())
	if err != nil {
		// Serializing our own result frame failed: fall back to a
		// minimal error body so the supervisor still gets a frame it
		// can attribute, rather than leaving the task to time out.
		fallback := ptypes.Result{
			TaskID:  result.TaskID,
			Status:  ptypes.StatusSerializationError,
			Message: "output: " + err.Error(),
		}
		body, err = c.Encode(fallback.ToWire())
		if err != nil {
			return err
		}
	}
	return wireframe.WriteTaggedFrame(out, uint64(result.TaskID), body)
}
