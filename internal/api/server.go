package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"reelforge/internal/logging"
	"reelforge/internal/media/store"
	"reelforge/internal/pipeline"
	"reelforge/internal/runstore"
	"reelforge/internal/services"
)

const (
	serviceName     = "reelforge"
	maxRequestBytes = 1 << 20
	defaultRunLimit = 50
	shutdownTimeout = 5 * time.Second
)

// Handle is a run driven in this process.
type Handle interface {
	ID() string
	Cancel()
	Done() <-chan struct{}
	Snapshot() pipeline.PipelineRun
	Wait(ctx context.Context) (pipeline.Summary, error)
}

// Launcher starts and resumes runs.
type Launcher interface {
	Start(ctx context.Context, req pipeline.Request) (Handle, error)
	Resume(ctx context.Context, runID string) (Handle, error)
}

// RunReader reads the run archive.
type RunReader interface {
	Get(ctx context.Context, id string) (*runstore.Run, error)
	List(ctx context.Context, limit int, states ...string) ([]*runstore.Run, error)
}

// Options configures a Server.
type Options struct {
	Token   string
	Version string
}

// Server serves the run API.
type Server struct {
	launcher Launcher
	runs     RunReader
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	base   context.Context
	active map[string]Handle
	wg     sync.WaitGroup
}

// NewServer constructs a server. runs may be nil, in which case only runs
// driven by this server are visible.
func NewServer(launcher Launcher, runs RunReader, opts Options, logger *slog.Logger) *Server {
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = "dev"
	}
	return &Server{
		launcher: launcher,
		runs:     runs,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		base:     context.Background(),
		active:   make(map[string]Handle),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleHealth)
	mux.HandleFunc("GET /api/runs", authMiddleware(s.opts.Token, s.handleListRuns))
	mux.HandleFunc("POST /api/runs", authMiddleware(s.opts.Token, s.handleStartRun))
	mux.HandleFunc("GET /api/runs/{id}", authMiddleware(s.opts.Token, s.handleGetRun))
	mux.HandleFunc("POST /api/runs/{id}/cancel", authMiddleware(s.opts.Token, s.handleCancelRun))
	mux.HandleFunc("POST /api/runs/{id}/resume", authMiddleware(s.opts.Token, s.handleResumeRun))
	return mux
}

// ListenAndServe binds addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx ends. Runs started through
// the server are cancelled on shutdown and awaited before Serve returns.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	s.cancelActive()
	s.wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", serveErr)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: s.opts.Version, Service: serviceName})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultRunLimit
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	var states []string
	for _, value := range query["state"] {
		if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
			states = append(states, trimmed)
		}
	}
	resp := RunListResponse{Runs: []RunView{}}
	if s.runs == nil {
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	runs, err := s.runs.List(r.Context(), limit, states...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, FromRun(run))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	handle, err := s.launcher.Start(s.runContext(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.track(handle)
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{RunID: handle.ID(), State: handle.Snapshot().State})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var resp RunResponse
	if handle := s.lookup(id); handle != nil {
		live := handle.Snapshot()
		resp.Live = &live
	}
	if s.runs != nil {
		record, err := s.runs.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if record != nil {
			view := FromRun(record)
			resp.Run = &view
		}
	}
	if resp.Run == nil && resp.Live == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	handle := s.lookup(id)
	if handle == nil {
		if s.runs != nil {
			record, err := s.runs.Get(r.Context(), id)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if record != nil {
				s.writeError(w, http.StatusConflict, "run "+id+" is not active on this server")
				return
			}
		}
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	handle.Cancel()
	s.logger.Info("run cancel requested",
		logging.String(logging.FieldEventType, "run_cancel_requested"),
		logging.String("run_id", id),
	)
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{RunID: id, State: handle.Snapshot().State})
}

func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if s.lookup(id) != nil {
		s.writeError(w, http.StatusConflict, "run "+id+" is already active")
		return
	}
	handle, err := s.launcher.Resume(s.runContext(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.track(handle)
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{RunID: handle.ID(), State: handle.Snapshot().State})
}

func (s *Server) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// track keeps handle addressable until it finishes.
func (s *Server) track(handle Handle) {
	id := handle.ID()
	s.mu.Lock()
	s.active[id] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		summary, err := handle.Wait(context.Background())
		s.mu.Lock()
		if s.active[id] == handle {
			delete(s.active, id)
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("run finished without output",
				logging.String(logging.FieldEventType, "api_run_failed"),
				logging.String("run_id", id),
				logging.String("state", string(summary.State)),
				logging.Error(err),
			)
			return
		}
		s.logger.Info("run finished",
			logging.String(logging.FieldEventType, "api_run_completed"),
			logging.String("run_id", id),
			logging.String("output", summary.Output),
		)
	}()
}

func (s *Server) lookup(id string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *Server) cancelActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, handle := range s.active {
		handle.Cancel()
	}
}

// statusFor maps error markers onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrRunLocked):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
