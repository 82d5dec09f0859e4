// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/voeux/internal/app"
	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/preference"
	"github.com/okian/voeux/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AssignmentDependencies
	VoeuxDependencies
}

// Report mirrors the read shape returned by report queries.
type Report = types.Report

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	assignmentHandler *AssignmentHandler
	voeuxHandler      *VoeuxHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		assignmentHandler: NewAssignmentHandler(deps),
		voeuxHandler:      NewVoeuxHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/assignment-run", MetricsMiddleware(s.assignmentHandler.HandleRun, "assignment_run"))
	mux.HandleFunc("/assignment-report", MetricsMiddleware(s.assignmentHandler.HandleReport, "assignment_report"))
	mux.HandleFunc("/assignment-status", MetricsMiddleware(s.assignmentHandler.HandleStatus, "assignment_status"))
	mux.HandleFunc("/assignments", MetricsMiddleware(s.assignmentHandler.HandleAssignments, "assignments"))
	mux.HandleFunc("/voeux", MetricsMiddleware(s.voeuxHandler.HandleSubmit, "voeux"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Reason and Rank are set for validation errors.
	Reason string `json:"reason,omitempty"`
	Rank   int    `json:"rank,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto the HTTP contract. Server-side
// failures are reported without detail.
func writeFailure(w http.ResponseWriter, op string, err error) {
	var verr *preference.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "validation_error",
			Message: verr.Error(),
			Reason:  verr.Reason(),
			Rank:    verr.Rank,
		})
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrUnknownAlgorithm),
		errors.Is(err, service.ErrUnknownLevel):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrConcurrentRun):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "run_in_progress", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrRunFailed):
		writeError(w, http.StatusInternalServerError, "assignment_failed", NewKind(op, service.ErrRunFailed))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "timeout", NewKind(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// levelParam reads the mandatory level query parameter.
func levelParam(r *http.Request) (model.Level, error) {
	level := strings.TrimSpace(r.URL.Query().Get("level"))
	if level == "" {
		return "", errors.New("missing level")
	}
	return model.Level(level), nil
}
