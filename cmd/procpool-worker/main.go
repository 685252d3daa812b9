// Command procpool-worker is a reference worker binary: it registers a
// handful of callables exercising every failure path the pool's
// recovery protocol is built to survive, then serves tasks from stdin
// until the pipe closes. The callables are grounded on the loky test
// suite's own fixtures (do_nothing, work_sleep, raise_error, crash,
// CrashAtPickle) — the original source this specification was
// distilled from.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/propool/procpool/internal/workerproc"
	"github.com/propool/procpool/pkg/codec"
	"github.com/propool/procpool/pkg/registry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	reg := registry.New()
	reg.Register("echo", handleEcho)
	reg.Register("sleep_then_return", handleSleepThenReturn)
	reg.Register("raise_error", handleRaiseError)
	reg.Register("crash", handleCrash)
	reg.Register("hostile_decode", handleHostileDecode)

	if err := workerproc.Serve(os.Stdin, os.Stdout, reg, codec.Default(), logger); err != nil {
		logger.Error("procpool-worker: serve exited with error", "error", err)
		os.Exit(1)
	}
}

// handleEcho returns its argument bytes unchanged — the "normal
// execution" fixture (do_nothing).
func handleEcho(args []byte) ([]byte, error) {
	return args, nil
}

type sleepArgs struct {
	Seconds float64     `json:"seconds"`
	Value   interface{} `json:"value"`
}

// handleSleepThenReturn sleeps, then returns Value — grounded on
// work_sleep.
func handleSleepThenReturn(args []byte) ([]byte, error) {
	var a sleepArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(a.Seconds * float64(time.Second)))
	return json.Marshal(a.Value)
}

// handleRaiseError always fails with a recoverable error — grounded on
// raise_error.
func handleRaiseError(args []byte) ([]byte, error) {
	return nil, fmt.Errorf("task raised an error on purpose")
}

// handleCrash panics uncaught, killing the worker process before any
// result frame is written — grounded on crash (faulthandler._sigsegv).
// Serve deliberately never recovers a handler panic: the whole point is
// to leave no frame behind so the supervisor's sentinel, not an error
// return, is what observes the failure.
func handleCrash(args []byte) ([]byte, error) {
	panic("procpool-worker: simulated crash")
}

// hostilePayload panics while being decoded, simulating a payload that
// crashes the process during deserialization — grounded on
// CrashAtPickle's __reduce__ hook.
type hostilePayload struct{}

func (*hostilePayload) UnmarshalJSON([]byte) error {
	panic("procpool-worker: simulated hostile decode crash")
}

func handleHostileDecode(args []byte) ([]byte, error) {
	var h hostilePayload
	if err := json.Unmarshal(args, &h); err != nil {
		return nil, err
	}
	return []byte("null"), nil
}
