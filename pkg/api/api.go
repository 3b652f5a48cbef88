// Package api exposes a read-only HTTP status surface over the job store
// and run registry: run listings, per-run status counts, and job detail.
// It never mutates scheduler state.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// Server serves the status API.
type Server struct {
	store  core.JobStore
	runs   core.RunRegistry
	logger *slog.Logger
}

// New creates a status API server. A nil logger falls back to slog.Default().
func New(store core.JobStore, runs core.RunRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, runs: runs, logger: logger}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/jobs", s.handleListJobs)
		r.Get("/runs/{runID}/jobs/{jobID}", s.handleGetJob)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// runDetail is the run view with live status counts.
type runDetail struct {
	*core.Run
	JobCounts map[core.JobStatus]int64 `json:"job_counts"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	counts := make(map[core.JobStatus]int64, 4)
	for _, status := range []core.JobStatus{
		core.StatusPending, core.StatusInProgress, core.StatusDone, core.StatusFailed,
	} {
		n, err := s.store.CountByStatus(r.Context(), runID, status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		counts[status] = n
	}
	s.writeJSON(w, http.StatusOK, &runDetail{Run: run, JobCounts: counts})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, r, err)
		return
	}
	jobs, err := s.store.ListJobs(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrRunNotFound) || errors.Is(err, core.ErrJobNotFound) {
		status = http.StatusNotFound
	} else {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
