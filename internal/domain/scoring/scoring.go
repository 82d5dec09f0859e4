// Package scoring computes the satisfaction score of an allocation.
package scoring

import (
	"math"

	"github.com/okian/voeux/internal/domain/model"
)

const maxScoreValue = 100

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithRankBlend mixes the rank position into each student score with
// weight alpha in [0, 1]. Out of range values are ignored.
func WithRankBlend(alpha float64) Option {
	return func(s *Scorer) {
		if alpha >= 0 && alpha <= 1 {
			s.alpha = alpha
		}
	}
}

// Result summarizes how well an allocation matches preferences.
type Result struct {
	// Satisfaction is the mean student score over assigned students, in
	// [0, 100] with two decimals.
	Satisfaction  float64
	TotalStudents int
	Assigned      int
	Unassigned    int
}

// Scorer is stateless after construction.
type Scorer struct {
	alpha float64
}

// New creates a scorer. Without options each assigned student scores
// 100 × assigned_weight / top_weight.
func New(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates alloc against the input it was computed from.
func (s *Scorer) Score(in model.LevelInput, alloc model.Allocation) Result {
	res := Result{TotalStudents: len(in.Students), Assigned: len(alloc.Assignments)}
	res.Unassigned = res.TotalStudents - res.Assigned
	if res.Assigned == 0 {
		return res
	}

	students := make(map[string]model.Student, len(in.Students))
	for _, st := range in.Students {
		students[st.ID] = st
	}

	var sum float64
	for _, as := range alloc.Assignments {
		sum += s.student(students[as.StudentID], as, in.MaxChoice)
	}
	res.Satisfaction = round2(sum / float64(res.Assigned))
	return res
}

func (s *Scorer) student(st model.Student, as model.Assignment, maxChoice int) float64 {
	top, topRank := 0, math.MaxInt
	for _, v := range st.Voeux {
		if v.Rank < topRank {
			top, topRank = v.Weight, v.Rank
		}
	}

	weightScore := float64(maxScoreValue)
	if top > 0 {
		weightScore = maxScoreValue * float64(as.Weight) / float64(top)
	}
	if s.alpha == 0 {
		return clamp(weightScore)
	}

	if maxChoice < len(st.Voeux) {
		maxChoice = len(st.Voeux)
	}
	rankScore := float64(maxScoreValue)
	if maxChoice > 0 {
		rankScore = maxScoreValue * float64(maxChoice-as.Rank+1) / float64(maxChoice)
	}
	return clamp((1-s.alpha)*weightScore + s.alpha*rankScore)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScoreValue, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
