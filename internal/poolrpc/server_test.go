package poolrpc

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propool/procpool/internal/pool"
)

// newIdlePool builds a pool backed by `cat`, which just relays stdin to
// stdout; since these tests submit no task, it never writes a frame. It
// is enough to exercise the control surface (/status, /resize) without
// needing a real task to round-trip.
func newIdlePool(t *testing.T, size int) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{
		Size:    size,
		Command: func() *exec.Cmd { return exec.Command("cat") },
		Logger:  slog.New(slog.NewTextHandler(nopWriter{}, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Terminate()
		p.Join()
	})
	return p
}

type nopWriter struct{}

func (nopWriter) Write(b []byte) (int, error) { return len(b), nil }

func TestHandleStatusReportsWorkerCounts(t *testing.T) {
	p := newIdlePool(t, 2)
	s := NewServer(p, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := httpGet(srv.URL + "/status")
	require.NoError(t, err)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(resp, &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 2, status.TargetSize)
	assert.Equal(t, 2, status.Idle+status.Busy+status.Draining+status.Dead)
}

func TestHandleResizeChangesTargetSize(t *testing.T) {
	p := newIdlePool(t, 1)
	s := NewServer(p, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	body, _ := json.Marshal(ResizeRequest{Size: 3})
	_, err := httpPost(srv.URL+"/resize", body)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TargetSize())
}

func TestHandleResizeRejectsInvalidSize(t *testing.T) {
	p := newIdlePool(t, 1)
	s := NewServer(p, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	body, _ := json.Marshal(ResizeRequest{Size: 0})
	_, err := httpPost(srv.URL+"/resize", body)
	assert.Error(t, err)
}

func TestHandleTerminateStopsThePool(t *testing.T) {
	p := newIdlePool(t, 1)
	s := NewServer(p, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	_, err := httpPost(srv.URL+"/terminate", nil)
	require.NoError(t, err)
	p.Join()
	assert.Equal(t, pool.StateTerminated, p.State())
}
