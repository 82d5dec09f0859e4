package preference

import (
	"errors"
	"fmt"
)

// Sentinel kinds for rejected submissions. Every rejection is a
// *ValidationError wrapping exactly one of them.
var (
	ErrDeadlinePassed   = errors.New("deadline passed")
	ErrWrongLength      = errors.New("wrong number of wishes")
	ErrDuplicateProject = errors.New("project listed more than once")
	ErrNonMonotonic     = errors.New("preference weight increases down the list")
	ErrWeightRange      = errors.New("preference weight out of range")
	ErrForeignProject   = errors.New("project not offered to this level")
)

var reasons = map[error]string{
	ErrDeadlinePassed:   "deadline_passed",
	ErrWrongLength:      "wrong_length",
	ErrDuplicateProject: "duplicate_project",
	ErrNonMonotonic:     "non_monotonic",
	ErrWeightRange:      "weight_range",
	ErrForeignProject:   "foreign_project",
}

// ValidationError explains why a wish list was rejected.
type ValidationError struct {
	Kind error
	// Rank is the 1-based position the rejection points at, 0 for list-wide problems.
	Rank      int
	ProjectID string
	Detail    string
}

func (e *ValidationError) Error() string {
	msg := e.Kind.Error()
	if e.Rank > 0 {
		msg = fmt.Sprintf("%s at rank %d", msg, e.Rank)
	}
	if e.ProjectID != "" {
		msg = fmt.Sprintf("%s (project %s)", msg, e.ProjectID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// Reason returns a stable snake_case code for the rejection kind.
func (e *ValidationError) Reason() string {
	if r, ok := reasons[e.Kind]; ok {
		return r
	}
	return "invalid"
}
