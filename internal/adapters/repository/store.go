// Package repository defines where matching input comes from and where
// finished runs are kept.
package repository

import (
	"context"
	"time"

	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
)

// DefaultMaxChoice applies to levels without a deadline record.
const DefaultMaxChoice = 5

// Source is the upstream catalog of students, projects, deadlines and voeux.
type Source interface {
	// LoadLevel returns a consistent snapshot of one level. Voeux for
	// projects outside the level are left out.
	LoadLevel(ctx context.Context, level model.Level) (model.LevelInput, error)

	// Deadline returns the level deadline, falling back to an open cutoff
	// and the default max_choice when none is recorded.
	Deadline(ctx context.Context, level model.Level) (model.Deadline, error)

	// Projects lists the projects offered to a level.
	Projects(ctx context.Context, level model.Level) ([]model.Project, error)

	// Student returns ErrNotFound for unknown ids.
	Student(ctx context.Context, id string) (model.Student, error)

	// ReplaceVoeux swaps the whole wish list of a student.
	ReplaceVoeux(ctx context.Context, studentID string, voeux []model.Voeu) error
}

// Record is a COMPLETE run as kept by a ResultStore.
type Record struct {
	RunID       string           `json:"run_id"`
	Key         model.RunKey     `json:"-"`
	Allocation  model.Allocation `json:"allocation"`
	Report      types.Report     `json:"report"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ResultStore keeps the latest COMPLETE run per (level, algorithm).
type ResultStore interface {
	// Replace atomically swaps the stored record of rec.Key.
	Replace(ctx context.Context, rec Record) error

	// Latest returns ErrNotFound when no run completed for key.
	Latest(ctx context.Context, key model.RunKey) (Record, error)
}
