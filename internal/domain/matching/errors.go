package matching

import (
	"errors"
	"fmt"

	"github.com/okian/voeux/internal/domain/model"
)

var (
	// ErrInvalidInput rejects matching input the engine cannot run on.
	ErrInvalidInput = errors.New("invalid matching input")
	// ErrCapacityConflict marks an allocation that breaks a matching guarantee.
	ErrCapacityConflict = errors.New("capacity conflict")
)

// ConflictError reports the first guarantee an allocation broke. It is a
// programming fault and never partially published.
type ConflictError struct {
	Level     model.Level
	Algorithm model.Algorithm
	StudentID string
	ProjectID string
	Detail    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: level %s %s: %s", ErrCapacityConflict, e.Level, e.Algorithm, e.Detail)
}

func (e *ConflictError) Unwrap() error { return ErrCapacityConflict }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
