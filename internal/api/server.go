// Package api exposes the login orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/okulovsky/tgweb-automation/internal/orchestrator"
	"github.com/okulovsky/tgweb-automation/internal/runlog"
	"github.com/okulovsky/tgweb-automation/internal/sessionstore"
)

// Server serves the daemon's HTTP API.
type Server struct {
	mgr      *orchestrator.Manager
	sessions *sessionstore.Store
	runs     *runlog.Store // nil when run logging is disabled
	server   *http.Server
	logger   *slog.Logger
	started  time.Time
}

// NewServer creates a server bound to addr.
func NewServer(addr string, mgr *orchestrator.Manager, sessions *sessionstore.Store, runs *runlog.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mgr:      mgr,
		sessions: sessions,
		runs:     runs,
		logger:   logger,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/start", s.handleStart)
	mux.HandleFunc("GET /auth/status/{job_id}", s.handleJobStatus)
	mux.HandleFunc("POST /auth/submit-otp", s.handleSubmitOTP)
	mux.HandleFunc("POST /auth/submit-2fa", s.handleSubmit2FA)
	mux.HandleFunc("POST /auth/cancel/{job_id}", s.handleCancel)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /sessions/{phone}", s.handleDeleteSession)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /notes/{phone}", s.handleGetNote)
	mux.HandleFunc("PUT /notes/{phone}", s.handlePutNote)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start begins serving the API.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps orchestrator error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, sessionstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrConflict), errors.Is(err, orchestrator.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrResourceExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// StartRequest is the body of POST /auth/start.
type StartRequest struct {
	Phone    string `json:"phone"`
	Force    bool   `json:"force,omitempty"`
	Headless *bool  `json:"headless,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	snap, err := s.mgr.StartLogin(req.Phone, req.Force, req.Headless)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// A reuse short-circuit returns the stored session immediately; a fresh
	// job is acknowledged before the browser finishes launching.
	if snap.State == orchestrator.StateCompleted {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.Status(r.PathValue("job_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubmitRequest is the body of the two credential submission endpoints.
type SubmitRequest struct {
	JobID    string `json:"job_id"`
	Code     string `json:"code,omitempty"`
	Password string `json:"password,omitempty"`
}

func (s *Server) handleSubmitOTP(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	snap, err := s.mgr.SubmitOTP(r.Context(), req.JobID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSubmit2FA(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	snap, err := s.mgr.Submit2FA(r.Context(), req.JobID, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.mgr.Cancel(jobID); err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.mgr.Status(jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	metas, err := s.sessions.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": metas,
		"count":    len(metas),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	phone, err := orchestrator.NormalizePhone(r.PathValue("phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	removed, err := s.sessions.Delete(phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	s.logger.Info("session deleted", "phone", orchestrator.RedactPhone(phone))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.runs.ListAttempts(r.Context(), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  attempts,
		"count": len(attempts),
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	phone, err := orchestrator.NormalizePhone(r.PathValue("phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	text, err := s.runs.Note(r.Context(), phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": phone, "text": text})
}

// NoteRequest is the body of PUT /notes/{phone}.
type NoteRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePutNote(w http.ResponseWriter, r *http.Request) {
	phone, err := orchestrator.NormalizePhone(r.PathValue("phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.runs.SetNote(r.Context(), phone, req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthResponse is the response from /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// StatusResponse is the response from /status.
type StatusResponse struct {
	Summary  orchestrator.Summary    `json:"summary"`
	Jobs     []orchestrator.Snapshot `json:"jobs"`
	Sessions int                     `json:"sessions"`
	Uptime   string                  `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	metas, err := s.sessions.List()
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Summary:  s.mgr.Summarize(),
		Jobs:     s.mgr.Jobs(),
		Sessions: len(metas),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
}
