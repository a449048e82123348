package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/evaluator"
	"github.com/cwbudde/scenariosearch/internal/metrics"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// Options configure a Server. Zero values select defaults.
type Options struct {
	// MaxConcurrent bounds the runs executing at once. Default 1.
	MaxConcurrent int64

	// Simulator overrides the configured simulator command.
	Simulator evaluator.Simulator
}

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server
	env        runEnv

	// ctx outlives requests; cancelling it stops every worker.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server that runs campaigns from cfg against
// the checkpoint store.
func NewServer(addr string, cfg *config.Config, st *store.FSStore, opts Options) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		env: runEnv{
			store:     st,
			config:    cfg,
			metrics:   metrics.New(cfg.Strategy),
			simulator: opts.Simulator,
			slots:     semaphore.NewWeighted(opts.MaxConcurrent),

			isolateLogs: opts.MaxConcurrent > 1,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the server's routes wrapped with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/metrics", s.env.metrics.Handler())

	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunsWithID)
	mux.HandleFunc("/api/v1/checkpoints", s.handleListCheckpoints)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and cancels every active run. Runs
// leave their checkpoints behind and can be resumed.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	counts := make(map[JobState]int)
	for _, job := range s.jobManager.ListJobs() {
		counts[job.State]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "scenariosearch",
		"strategy": s.env.config.Strategy,
		"routes":   s.env.config.RoutesPath,
		"runs":     counts,
	})
}

// handleRuns handles /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunsWithID handles /api/v1/runs/:id/*
func (s *Server) handleRunsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch sub {
	case "", "status":
		s.handleGetRunStatus(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "result":
		s.handleGetResult(w, r, jobID)
	case "checkpoint":
		s.handleGetCheckpoint(w, r, jobID)
	case "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCancelRun(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRun handles POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if req.Mode == "" {
		req.Mode = config.ModeSearch
	}
	if req.Mode != config.ModeSearch && req.Mode != config.ModeSweep {
		http.Error(w, fmt.Sprintf("unknown mode: %s", req.Mode), http.StatusBadRequest)
		return
	}
	if req.Resume && req.RunID == "" {
		http.Error(w, "runId is required to resume", http.StatusBadRequest)
		return
	}
	if err := req.Apply(s.env.config).Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.jobManager.CreateJob(req, s.env.config.Strategy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	handle := s.jobManager.setCancel(job.ID, cancel)
	go func() {
		defer cancel()
		defer s.jobManager.clearCancel(job.ID, handle)
		runJob(ctx, s.jobManager, s.env, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetRunStatus handles GET /api/v1/runs/:id/status
func (s *Server) handleGetRunStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          job.ID,
		"state":       job.State,
		"request":     job.Request,
		"strategy":    job.Strategy,
		"evaluations": job.Evaluations,
		"failures":    job.Failures,
		"generation":  job.Generation,
		"frontSize":   job.FrontSize,
		"best":        job.Best,
		"routes":      job.Routes,
		"elapsed":     elapsed.Seconds(),
		"eps":         progressEvent(job).EPS,
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	})
}

// handleGetResult handles GET /api/v1/runs/:id/result. Results are read
// from the store, so runs from earlier server processes are served too.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request, runID string) {
	result, err := s.env.store.LoadResult(runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetCheckpoint handles GET /api/v1/runs/:id/checkpoint
func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request, runID string) {
	cp, err := s.env.store.LoadCheckpoint(runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Checkpoint not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// handleCancelRun handles POST /api/v1/runs/:id/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListCheckpoints handles GET /api/v1/checkpoints
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	infos, err := s.env.store.ListCheckpoints()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
