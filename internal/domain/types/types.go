// Package types contains the wire shapes served to clients.
package types

import (
	"github.com/okian/voeux/internal/domain/diagnostics"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/scoring"
)

// StudentRef identifies a student in a report.
type StudentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Unassigned groups students left without a project by cause.
type Unassigned struct {
	NoWish        []StudentRef `json:"no_wish"`
	SaturatedOnly []StudentRef `json:"saturated_only"`
	OtherCount    int          `json:"other_count"`
}

// DuplicateCandidate is a project worth opening more groups of.
type DuplicateCandidate struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Demand    int    `json:"demand"`
	Capacity  int    `json:"capacity"`
}

// ReviewCandidate is a project nobody wished for.
type ReviewCandidate struct {
	ProjectID  string `json:"project_id"`
	Title      string `json:"title"`
	Supervisor string `json:"supervisor"`
}

// Suggestions lists catalog changes worth considering.
type Suggestions struct {
	DuplicateCandidates []DuplicateCandidate `json:"duplicate_candidates"`
	ReviewCandidates    []ReviewCandidate    `json:"review_candidates"`
}

// Stats are the headline numbers of a run.
type Stats struct {
	TotalStudents     int     `json:"total_students"`
	AssignedCount     int     `json:"assigned_count"`
	UnassignedCount   int     `json:"unassigned_count"`
	SatisfactionScore float64 `json:"satisfaction_score"`
}

// Report is the assignment report of one (level, algorithm) run.
type Report struct {
	Level       model.Level     `json:"level"`
	Algorithm   model.Algorithm `json:"algorithm"`
	RunID       string          `json:"run_id"`
	Unassigned  Unassigned      `json:"unassigned"`
	Suggestions Suggestions     `json:"suggestions"`
	Stats       Stats           `json:"stats"`
}

// NewReport assembles the wire report from the diagnostics and score of a run.
func NewReport(runID string, alloc model.Allocation, diag diagnostics.Report, score scoring.Result) Report {
	rep := Report{
		Level:     alloc.Level,
		Algorithm: alloc.Algorithm,
		RunID:     runID,
		Unassigned: Unassigned{
			NoWish:        refs(diag.NoWish),
			SaturatedOnly: refs(diag.SaturatedOnly),
			OtherCount:    len(diag.Other),
		},
		Suggestions: Suggestions{
			DuplicateCandidates: make([]DuplicateCandidate, 0, len(diag.Duplicates)),
			ReviewCandidates:    make([]ReviewCandidate, 0, len(diag.Reviews)),
		},
		Stats: Stats{
			TotalStudents:     score.TotalStudents,
			AssignedCount:     score.Assigned,
			UnassignedCount:   score.Unassigned,
			SatisfactionScore: score.Satisfaction,
		},
	}
	for _, d := range diag.Duplicates {
		rep.Suggestions.DuplicateCandidates = append(rep.Suggestions.DuplicateCandidates, DuplicateCandidate{
			ProjectID: d.ProjectID, Title: d.Title, Demand: d.Demand, Capacity: d.Capacity,
		})
	}
	for _, r := range diag.Reviews {
		rep.Suggestions.ReviewCandidates = append(rep.Suggestions.ReviewCandidates, ReviewCandidate(r))
	}
	return rep
}

func refs(students []model.Student) []StudentRef {
	out := make([]StudentRef, 0, len(students))
	for _, s := range students {
		out = append(out, StudentRef{ID: s.ID, Name: s.Name})
	}
	return out
}
