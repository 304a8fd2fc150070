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

	"github.com/cwbudde/resistornet/internal/metrics"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	opts       WorkerOptions
	server     *http.Server
}

// NewServer creates a new HTTP server. opts.Store may be nil, in which case
// jobs run without checkpoints and resume requests are rejected.
func NewServer(addr string, opts WorkerOptions) *Server {
	return &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		opts:       opts,
	}
}

// Handler returns the routed and wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.Handle("/metrics", metrics.Handler())

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.jobManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.handleCancelJob(w, r, jobID)
	case sub == "resume" && r.Method == http.MethodPost:
		s.handleResumeJob(w, r, jobID)
	case r.Method != http.MethodGet:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	case sub == "" || sub == "status":
		s.handleGetJobStatus(w, r, jobID)
	case sub == "best":
		s.handleGetBest(w, r, jobID)
	case sub == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	applyJobDefaults(&config)
	if err := validateJobConfig(config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.start(job.ID, nil)

	writeJSON(w, http.StatusCreated, job)
}

// handleResumeJob handles POST /api/v1/jobs/:id/resume. The id names a
// checkpoint; the resumed job gets a fresh id and starts from the stored best.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request, checkpointID string) {
	if s.opts.Store == nil {
		http.Error(w, "Checkpoints are disabled", http.StatusServiceUnavailable)
		return
	}

	checkpoint, err := s.opts.Store.LoadCheckpoint(checkpointID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Checkpoint not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load checkpoint: %v", err), http.StatusInternalServerError)
		return
	}

	config := checkpoint.Config
	applyJobDefaults(&config)
	if err := validateJobConfig(config); err != nil {
		http.Error(w, fmt.Sprintf("Checkpoint cannot be resumed: %v", err), http.StatusBadRequest)
		return
	}
	job := s.jobManager.CreateJob(config)
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.ResumedFrom = checkpointID
		j.Best = checkpoint.Best
		j.BestCost = checkpoint.BestCost
		j.Restarts = checkpoint.Restarts
	})
	job, _ = s.jobManager.GetJob(job.ID)
	s.start(job.ID, checkpoint.Best)

	writeJSON(w, http.StatusCreated, job)
}

// start runs a job in the background with its own cancellable context
func (s *Server) start(jobID string, incumbent *network.Node) {
	ctx, cancel := context.WithCancelCause(context.Background())
	s.jobManager.attach(jobID, cancel)

	go func() {
		defer func() {
			s.jobManager.detach(jobID)
			cancel(nil)
		}()
		if err := runJob(ctx, s.jobManager, s.opts, jobID, incumbent); err != nil {
			slog.Debug("Job ended with error", "job_id", jobID, "error", err)
		}
	}()
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	elapsed := jobElapsed(job)
	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(job.Restarts) / elapsed.Seconds()
	}

	response := map[string]interface{}{
		"id":                job.ID,
		"state":             job.State,
		"config":            job.Config,
		"bestCost":          job.BestCost,
		"lowerBound":        job.LowerBound,
		"restarts":          job.Restarts,
		"improvements":      job.Improvements,
		"converged":         job.Converged,
		"elapsed":           elapsed.Seconds(),
		"restartsPerSecond": rps,
		"startTime":         job.StartTime,
		"endTime":           job.EndTime,
		"error":             job.Error,
	}
	if job.Best != nil {
		response["network"] = network.Expression(job.Best)
	}
	if job.ResumedFrom != "" {
		response["resumedFrom"] = job.ResumedFrom
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetBest handles GET /api/v1/jobs/:id/best
func (s *Server) handleGetBest(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if job.Best == nil {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	p, err := job.Config.Problem()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      job.ID,
		"network": job.Best,
		"summary": network.Summarize(p, job.Best),
	})
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, fmt.Sprintf("Job is %s", job.State), http.StatusConflict)
		return
	}

	slog.Info("Job cancel requested", "job_id", jobID)
	w.WriteHeader(http.StatusAccepted)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
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
