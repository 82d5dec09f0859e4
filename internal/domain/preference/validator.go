// Package preference turns an editable wish-list draft into immutable,
// ranked matching input.
package preference

import (
	"fmt"
	"time"

	"github.com/okian/voeux/internal/domain/model"
)

// Wish is one entry of a submitted draft, in preference order.
type Wish struct {
	ProjectID string `json:"project_id"`
	Weight    int    `json:"weight"`
}

// Submission is the complete draft of one student.
type Submission struct {
	StudentID string
	Level     model.Level
	Wishes    []Wish
	// Offered restricts wishes to these projects when non-nil.
	Offered []model.Project
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithClock overrides the time source used for the deadline check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// Validator is the only gate from a draft to matching input.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator using the wall clock by default.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks a submission against the level deadline and returns the
// ranked voeux. It never corrects input: any problem is a *ValidationError.
func (v *Validator) Validate(sub Submission, deadline model.Deadline) ([]model.Voeu, error) {
	if !deadline.Open(v.now()) {
		return nil, &ValidationError{
			Kind:   ErrDeadlinePassed,
			Detail: "cutoff was " + deadline.Cutoff.Format(time.RFC3339),
		}
	}
	if len(sub.Wishes) != deadline.MaxChoice {
		return nil, &ValidationError{
			Kind:   ErrWrongLength,
			Detail: fmt.Sprintf("got %d, level %s requires exactly %d", len(sub.Wishes), deadline.Level, deadline.MaxChoice),
		}
	}

	var offered map[string]struct{}
	if sub.Offered != nil {
		offered = make(map[string]struct{}, len(sub.Offered))
		for _, p := range sub.Offered {
			offered[p.ID] = struct{}{}
		}
	}

	seen := make(map[string]int, len(sub.Wishes))
	out := make([]model.Voeu, 0, len(sub.Wishes))
	for i, w := range sub.Wishes {
		rank := i + 1
		if w.Weight < model.MinWeight || w.Weight > model.MaxWeight {
			return nil, &ValidationError{
				Kind: ErrWeightRange, Rank: rank, ProjectID: w.ProjectID,
				Detail: fmt.Sprintf("%d not in [%d, %d]", w.Weight, model.MinWeight, model.MaxWeight),
			}
		}
		if first, dup := seen[w.ProjectID]; dup {
			return nil, &ValidationError{
				Kind: ErrDuplicateProject, Rank: rank, ProjectID: w.ProjectID,
				Detail: fmt.Sprintf("already listed at rank %d", first),
			}
		}
		seen[w.ProjectID] = rank
		if offered != nil {
			if _, ok := offered[w.ProjectID]; !ok {
				return nil, &ValidationError{Kind: ErrForeignProject, Rank: rank, ProjectID: w.ProjectID}
			}
		}
		if i > 0 && w.Weight > sub.Wishes[i-1].Weight {
			return nil, &ValidationError{
				Kind: ErrNonMonotonic, Rank: rank, ProjectID: w.ProjectID,
				Detail: fmt.Sprintf("weight %d exceeds %d at rank %d", w.Weight, sub.Wishes[i-1].Weight, i),
			}
		}
		out = append(out, model.Voeu{
			StudentID: sub.StudentID,
			ProjectID: w.ProjectID,
			Rank:      rank,
			Weight:    w.Weight,
		})
	}
	return out, nil
}
