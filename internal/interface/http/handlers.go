package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/volunteerhub/profile-analytics/internal/application/command"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/scheduler"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
)

// maxBodyBytes caps operator request bodies.
const maxBodyBytes = 1 << 16

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check; it fails when any dependency is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady fails only when a critical dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Scores.Handle(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleGetBehavior(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Behavior.Handle(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// InvalidateRequest is the body of POST /profiles/{userID}/invalidate.
type InvalidateRequest struct {
	Reason command.Reason `json:"reason"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	result, err := s.deps.Invalidate.Handle(r.Context(), command.InvalidateAnalyticsCommand{
		UserID: chi.URLParam(r, "userID"),
		Reason: req.Reason,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateRequest is the body of POST /recalculations.
type RecalculateRequest struct {
	UserID    string `json:"user_id"`
	AllActive bool   `json:"all_active"`
	BatchSize int    `json:"batch_size"`
	Force     bool   `json:"force"`
}

// handleRecalculate recalculates one user synchronously. A full-population
// request starts the scheduled job in the background with the request's
// batch size and force flag and returns 202. A zero batch size uses the
// job's configured one.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.BatchSize < 0 {
		s.writeDomainError(w, r, shared.ErrInvalidBatchSize)
		return
	}

	if req.AllActive && req.UserID == "" && s.deps.Jobs != nil {
		err := s.deps.Jobs.TriggerWith(s.config.RecalculateJob, command.RecalculateProfilesCommand{
			Target:    command.Target{AllActive: true},
			BatchSize: req.BatchSize,
			Force:     req.Force,
			Trigger:   "api",
		})
		switch {
		case errors.Is(err, scheduler.ErrJobInFlight):
			writeJSONError(w, http.StatusConflict, "run_in_progress", "a recalculation run is already in progress")
		case err != nil:
			s.writeDomainError(w, r, err)
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"job": s.config.RecalculateJob, "status": "started"})
		}
		return
	}

	if req.BatchSize == 0 {
		req.BatchSize = 1
	}
	summary, err := s.deps.Recalculate.Handle(r.Context(), command.RecalculateProfilesCommand{
		Target:    command.Target{UserID: req.UserID, AllActive: req.AllActive},
		BatchSize: req.BatchSize,
		Force:     req.Force,
		Trigger:   "api",
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Jobs.ListJobs())
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "conflict"
	case shared.IsTimeout(err):
		return http.StatusGatewayTimeout, "computation_timeout"
	case shared.IsInputData(err), shared.IsCacheUnavailable(err), shared.IsPopulationSnapshot(err):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		return http.StatusServiceUnavailable, "scheduler_stopped"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path), logger.Err(err))
		message = "an unexpected error occurred"
	}
	writeJSONError(w, status, code, message)
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
