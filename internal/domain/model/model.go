// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Weight bounds for a single wish.
const (
	MinWeight = 0
	MaxWeight = 20
)

// DeadlineTypeVoeux is the deadline record type governing wish submission.
const DeadlineTypeVoeux = "voeux"

// ErrUnknownAlgorithm is returned for algorithm names outside the supported set.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Level is an academic level such as "L3" or "M1".
type Level string

// Algorithm selects the matching strategy of a run.
type Algorithm string

// Supported matching strategies.
const (
	// AlgoGreedy assigns rank by rank, contested seats going to the highest weight.
	AlgoGreedy Algorithm = "algo1"
	// AlgoDeferred runs student-proposing deferred acceptance.
	AlgoDeferred Algorithm = "algo2"
)

// Algorithms lists the supported strategies in a stable order.
func Algorithms() []Algorithm { return []Algorithm{AlgoGreedy, AlgoDeferred} }

// ParseAlgorithm validates a client-supplied algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.TrimSpace(s)); a {
	case AlgoGreedy, AlgoDeferred:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Student is a candidate for assignment. Voeux is ordered by rank.
type Student struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Level Level  `yaml:"level" json:"level"`
	Voeux []Voeu `yaml:"voeux,omitempty" json:"voeux,omitempty"`
}

// Project offers Capacity seats (number_groups) to students of one level.
type Project struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Supervisor string `yaml:"supervisor" json:"supervisor"`
	Level      Level  `yaml:"level" json:"level"`
	Capacity   int    `yaml:"number_groups" json:"number_groups"`
}

// Voeu is one ranked, weighted wish of a student for a project.
type Voeu struct {
	StudentID string `yaml:"-" json:"student_id"`
	ProjectID string `yaml:"project_id" json:"project_id"`
	Rank      int    `yaml:"rank" json:"rank"`
	Weight    int    `yaml:"weight" json:"weight"`
}

// Deadline closes wish submission for a level and fixes the list length.
type Deadline struct {
	Level     Level     `yaml:"level" json:"level"`
	Cutoff    time.Time `yaml:"cutoff" json:"cutoff"`
	MaxChoice int       `yaml:"max_choice" json:"max_choice"`
}

// Open reports whether submissions are still accepted at now. A zero
// cutoff never closes.
func (d Deadline) Open(now time.Time) bool {
	return d.Cutoff.IsZero() || !now.After(d.Cutoff)
}

// LevelInput is the immutable matching input of one level.
type LevelInput struct {
	Level     Level
	MaxChoice int
	Students  []Student
	Projects  []Project
}

// Assignment places one student on one project.
type Assignment struct {
	StudentID string `json:"student_id"`
	ProjectID string `json:"project_id"`
	Rank      int    `json:"rank"`
	Weight    int    `json:"weight"`
}

// ProjectSeats lists the students holding seats of a project, in the order
// they were placed.
type ProjectSeats struct {
	ProjectID string   `json:"project_id"`
	Capacity  int      `json:"capacity"`
	Students  []string `json:"students"`
}

// Full reports whether every seat is taken.
func (p ProjectSeats) Full() bool { return len(p.Students) >= p.Capacity }

// Allocation is the output of one matching run. Slices are sorted by id so
// that equal inputs produce identical values.
type Allocation struct {
	Level       Level          `json:"level"`
	Algorithm   Algorithm      `json:"algorithm"`
	Assignments []Assignment   `json:"assignments"`
	Seats       []ProjectSeats `json:"seats"`
	// Unassigned holds students that entered matching but were not placed.
	Unassigned []string `json:"unassigned"`
	// NoWish holds students that never entered matching.
	NoWish []string `json:"no_wish"`
}

// ProjectOf returns the assignment of a student, if any.
func (a *Allocation) ProjectOf(studentID string) (Assignment, bool) {
	for _, as := range a.Assignments {
		if as.StudentID == studentID {
			return as, true
		}
	}
	return Assignment{}, false
}

// SeatsOf returns the seat list of a project, if any.
func (a *Allocation) SeatsOf(projectID string) (ProjectSeats, bool) {
	for _, s := range a.Seats {
		if s.ProjectID == projectID {
			return s, true
		}
	}
	return ProjectSeats{}, false
}
