// File path: internal/api/server.go

// Package api exposes the compliance pipeline over HTTP. Runs execute
// asynchronously: POST returns an id immediately, status and the finished
// report are polled. The registry is in-memory; durable run history lives in
// the SQLite catalog.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/extractor"
	"github.com/auditkit/sopcheck/internal/pipeline"
)

// Run states as reported by the status endpoint.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

type runState struct {
	ID         string               `json:"id"`
	Mode       string               `json:"mode"`
	Status     string               `json:"status"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Report     *compliance.Report   `json:"-"`
	Warnings   []compliance.Warning `json:"warnings,omitempty"`
}

// Server serves the run and report endpoints.
type Server struct {
	runner *pipeline.Runner
	router chi.Router

	mu   sync.Mutex
	runs map[string]*runState
}

func NewServer(runner *pipeline.Runner) *Server {
	s := &Server{
		runner: runner,
		runs:   make(map[string]*runState),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{id}", s.handleRunStatus)
		r.Get("/runs/{id}/report", s.handleRunReport)
		r.Get("/logs", s.handleLogs)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRunRequest struct {
	SOPText   string `json:"sop_text"`
	Documents []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"documents"`
	Mode string `json:"mode"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SOPText == "" {
		writeError(w, http.StatusBadRequest, "sop_text is required")
		return
	}
	docs := make([]extractor.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, extractor.Document{ID: d.ID, Text: d.Text})
	}
	id := uuid.NewString()
	state := &runState{
		ID:        id,
		Mode:      req.Mode,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.runs[id] = state
	s.mu.Unlock()

	// The run outlives the request; it is detached from the request context.
	go s.execute(id, pipeline.Input{
		RunID:     id,
		SOPText:   req.SOPText,
		Documents: docs,
		Mode:      req.Mode,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": RunRunning})
}

func (s *Server) execute(id string, input pipeline.Input) {
	built, err := s.runner.Run(context.Background(), input)
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.runs[id]
	state.FinishedAt = &now
	if err != nil {
		state.Status = RunFailed
		state.Error = err.Error()
		common.Logger().Error("api: run failed", "run", id, "error", err)
		return
	}
	state.Status = RunSucceeded
	state.Report = &built
	state.Warnings = built.Warnings
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, common.LogEntries())
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		runState
		Telemetry telemetry.Snapshot `json:"telemetry"`
	}{runState: state, Telemetry: telemetry.Current()})
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	switch state.Status {
	case RunRunning:
		writeError(w, http.StatusConflict, "run still in progress")
	case RunFailed:
		writeError(w, http.StatusConflict, "run failed: "+state.Error)
	default:
		writeJSON(w, http.StatusOK, state.Report)
	}
}

// lookup returns a copy so handlers never serialize shared state outside the
// lock.
func (s *Server) lookup(id string) (runState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[id]
	if !ok {
		return runState{}, false
	}
	return *state, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.Logger().Warn("api: write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
