// Package poolrpc serves a small JSON control surface over the pool:
// status, resize, terminate, and submit. It stands in for the gRPC surface the
// teacher would normally generate from a .proto file — no such file
// exists anywhere in the retrieved reference set, and hand-authoring
// generated protobuf code without the toolchain would be fabricating a
// dependency, so this is plain net/http + encoding/json instead,
// grounded on the teacher's own internal/metrics.StartServer
// (http.Handle + ListenAndServe) rather than on its gRPC server.
package poolrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/propool/procpool/internal/pool"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State      string `json:"state"`
	TargetSize int    `json:"target_size"`
	Idle       int    `json:"idle_workers"`
	Busy       int    `json:"busy_workers"`
	Draining   int    `json:"draining_workers"`
	Dead       int    `json:"dead_workers"`
}

// ResizeRequest is the body of POST /resize.
type ResizeRequest struct {
	Size int `json:"size"`
}

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	CallableRef string          `json:"callable_ref"`
	Args        json.RawMessage `json:"args"`
	TimeoutMs   int64           `json:"timeout_ms"`
}

// SubmitResponse is the body returned by POST /submit once the task
// reaches a terminal state (or the request's timeout elapses).
type SubmitResponse struct {
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Server exposes a *pool.Pool over HTTP.
type Server struct {
	p      *pool.Pool
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds the HTTP handler for p.
func NewServer(p *pool.Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{p: p, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/resize", s.handleResize)
	s.mux.HandleFunc("/terminate", s.handleTerminate)
	s.mux.HandleFunc("/submit", s.handleSubmit)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the control-plane HTTP server on port, blocking
// until it fails. Mirrors the teacher's metrics.StartServer shape.
func (s *Server) ListenAndServe(port int) error {
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idle, busy, draining, dead := s.p.WorkerCounts()
	resp := StatusResponse{
		State:      string(s.p.State()),
		TargetSize: s.p.TargetSize(),
		Idle:       idle,
		Busy:       busy,
		Draining:   draining,
		Dead:       dead,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.p.Resize(req.Size); err != nil {
		s.logger.Error("poolrpc: resize failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	timeout := 30 * time.Second
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	// req.Args keeps its json.RawMessage type here (not a plain []byte
	// conversion) so the dispatcher's own codec.Encode call re-emits it
	// as the original JSON value instead of base64-wrapping raw bytes.
	handle, err := s.p.Submit(r.Context(), req.CallableRef, req.Args)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	result, err := handle.Get(ctx)

	resp := SubmitResponse{Status: string(result.Status), Payload: result.Payload, Message: result.Message}
	if err != nil && result.Status == "" {
		resp.Status = "error"
		resp.Message = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.p.Terminate(); err != nil {
		s.logger.Error("poolrpc: terminate failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
