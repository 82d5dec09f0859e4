package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/voeux/internal/domain/model"
)

// AssignmentDependencies defines the run and read operations.
type AssignmentDependencies interface {
	Run(ctx context.Context, level model.Level, algorithm string) (Report, error)
	Report(ctx context.Context, level model.Level, algorithm string) (Report, error)
	Status(level model.Level, algorithm string) (model.RunStatus, error)
	Assignments(ctx context.Context, level model.Level, algorithm string) ([]model.Assignment, error)
}

// AssignmentHandler handles assignment runs and their results.
type AssignmentHandler struct {
	deps AssignmentDependencies
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(deps AssignmentDependencies) *AssignmentHandler {
	return &AssignmentHandler{deps: deps}
}

type runRequest struct {
	Level     string `json:"level"`
	Algorithm string `json:"algorithm"`
}

type assignmentsResponse struct {
	Level       model.Level        `json:"level"`
	Algorithm   string             `json:"algorithm"`
	Assignments []model.Assignment `json:"assignments"`
}

// HandleRun handles POST /assignment-run requests. It answers once the run
// reaches COMPLETE or FAILED.
func (h *AssignmentHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_assignment_run"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Level) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing level")))
		return
	}

	report, err := h.deps.Run(r.Context(), model.Level(strings.TrimSpace(req.Level)), req.Algorithm)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// HandleReport handles GET /assignment-report?level=L&algorithm=A requests.
func (h *AssignmentHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assignment_report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	level, err := levelParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	report, err := h.deps.Report(r.Context(), level, r.URL.Query().Get("algorithm"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleStatus handles GET /assignment-status?level=L&algorithm=A requests.
func (h *AssignmentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assignment_status"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	level, err := levelParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.deps.Status(level, r.URL.Query().Get("algorithm"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAssignments handles GET /assignments?level=L&algorithm=A requests.
func (h *AssignmentHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assignments"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	level, err := levelParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	algorithm := r.URL.Query().Get("algorithm")
	as, err := h.deps.Assignments(r.Context(), level, algorithm)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if algorithm == "" {
		algorithm = string(model.AlgoGreedy)
	}
	writeJSON(w, http.StatusOK, assignmentsResponse{Level: level, Algorithm: algorithm, Assignments: as})
}
