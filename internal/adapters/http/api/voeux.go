package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/preference"
)

// VoeuxDependencies defines wish submission.
type VoeuxDependencies interface {
	SubmitVoeux(ctx context.Context, studentID string, wishes []preference.Wish) ([]model.Voeu, error)
}

// VoeuxHandler handles wish list submissions.
type VoeuxHandler struct {
	deps VoeuxDependencies
}

// NewVoeuxHandler creates a new voeux handler.
func NewVoeuxHandler(deps VoeuxDependencies) *VoeuxHandler {
	return &VoeuxHandler{deps: deps}
}

// voeuxRequest mirrors the OpenAPI schema for POST /voeux. Wishes are in
// preference order.
type voeuxRequest struct {
	StudentID string            `json:"student_id"`
	Wishes    []preference.Wish `json:"wishes"`
}

type voeuxResponse struct {
	StudentID string       `json:"student_id"`
	Voeux     []model.Voeu `json:"voeux"`
}

// HandleSubmit handles POST /voeux requests.
func (h *VoeuxHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_voeux"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req voeuxRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.StudentID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing student_id")))
		return
	}

	voeux, err := h.deps.SubmitVoeux(r.Context(), req.StudentID, req.Wishes)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, voeuxResponse{StudentID: req.StudentID, Voeux: voeux})
}
