// Package diagnostics explains unassigned students and suggests catalog
// changes after a run.
package diagnostics

import (
	"sort"

	"github.com/okian/voeux/internal/domain/model"
)

// DuplicateCandidate is a project asked for by more students than it seats.
type DuplicateCandidate struct {
	ProjectID string
	Title     string
	Demand    int
	Capacity  int
}

// Excess is the number of requests the project could not seat.
func (d DuplicateCandidate) Excess() int { return d.Demand - d.Capacity }

// ReviewCandidate is a project nobody wished for.
type ReviewCandidate struct {
	ProjectID  string
	Title      string
	Supervisor string
}

// Report is the outcome analysis of one allocation. NoWish, SaturatedOnly
// and Other partition the students left without a project.
type Report struct {
	NoWish        []model.Student
	SaturatedOnly []model.Student
	Other         []model.Student
	Duplicates    []DuplicateCandidate
	Reviews       []ReviewCandidate
}

// Reporter builds reports. It is stateless.
type Reporter struct{}

// NewReporter creates a reporter.
func NewReporter() *Reporter { return &Reporter{} }

// Analyze classifies unassigned students and collects project suggestions.
// Demand counts every wish for a project across all ranks.
func (r *Reporter) Analyze(in model.LevelInput, alloc model.Allocation) Report {
	rep := Report{
		NoWish:        []model.Student{},
		SaturatedOnly: []model.Student{},
		Other:         []model.Student{},
		Duplicates:    []DuplicateCandidate{},
		Reviews:       []ReviewCandidate{},
	}

	full := make(map[string]bool, len(alloc.Seats))
	for _, seats := range alloc.Seats {
		full[seats.ProjectID] = seats.Full()
	}
	placed := make(map[string]struct{}, len(alloc.Assignments))
	for _, as := range alloc.Assignments {
		placed[as.StudentID] = struct{}{}
	}

	demand := make(map[string]int, len(in.Projects))
	for _, st := range in.Students {
		for _, v := range st.Voeux {
			demand[v.ProjectID]++
		}
		if _, ok := placed[st.ID]; ok {
			continue
		}
		switch {
		case len(st.Voeux) == 0:
			rep.NoWish = append(rep.NoWish, st)
		case allSaturated(st.Voeux, full):
			rep.SaturatedOnly = append(rep.SaturatedOnly, st)
		default:
			rep.Other = append(rep.Other, st)
		}
	}

	for _, p := range in.Projects {
		d := demand[p.ID]
		switch {
		case d == 0:
			rep.Reviews = append(rep.Reviews, ReviewCandidate{ProjectID: p.ID, Title: p.Title, Supervisor: p.Supervisor})
		case d > p.Capacity:
			rep.Duplicates = append(rep.Duplicates, DuplicateCandidate{ProjectID: p.ID, Title: p.Title, Demand: d, Capacity: p.Capacity})
		}
	}

	byID := func(s []model.Student) {
		sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(rep.NoWish)
	byID(rep.SaturatedOnly)
	byID(rep.Other)
	sort.Slice(rep.Duplicates, func(i, j int) bool {
		a, b := rep.Duplicates[i], rep.Duplicates[j]
		if a.Excess() != b.Excess() {
			return a.Excess() > b.Excess()
		}
		return a.ProjectID < b.ProjectID
	})
	sort.Slice(rep.Reviews, func(i, j int) bool { return rep.Reviews[i].ProjectID < rep.Reviews[j].ProjectID })
	return rep
}

func allSaturated(voeux []model.Voeu, full map[string]bool) bool {
	for _, v := range voeux {
		if !full[v.ProjectID] {
			return false
		}
	}
	return true
}
