package matching

import (
	"fmt"

	"github.com/okian/voeux/internal/domain/model"
)

// Verify checks the guarantees every allocation must hold against its input:
// seats never exceed capacity, a student holds at most one project, only
// projects the student listed are assigned, and the seat lists describe the
// same placements as the assignments. It returns a *ConflictError for the
// first violation found.
func Verify(in model.LevelInput, alloc model.Allocation) error {
	conflict := func(studentID, projectID, format string, args ...any) error {
		return &ConflictError{
			Level:     alloc.Level,
			Algorithm: alloc.Algorithm,
			StudentID: studentID,
			ProjectID: projectID,
			Detail:    fmt.Sprintf(format, args...),
		}
	}

	capacity := make(map[string]int, len(in.Projects))
	for _, p := range in.Projects {
		capacity[p.ID] = p.Capacity
	}
	wishes := make(map[string]map[string]model.Voeu, len(in.Students))
	for _, s := range in.Students {
		m := make(map[string]model.Voeu, len(s.Voeux))
		for _, v := range s.Voeux {
			m[v.ProjectID] = v
		}
		wishes[s.ID] = m
	}

	placed := make(map[string]string, len(alloc.Assignments))
	perProject := make(map[string]int, len(capacity))
	for _, as := range alloc.Assignments {
		if prev, dup := placed[as.StudentID]; dup {
			return conflict(as.StudentID, as.ProjectID, "student already placed on %s", prev)
		}
		placed[as.StudentID] = as.ProjectID

		v, ok := wishes[as.StudentID][as.ProjectID]
		if !ok {
			return conflict(as.StudentID, as.ProjectID, "project not on the student's list")
		}
		if v.Rank != as.Rank || v.Weight != as.Weight {
			return conflict(as.StudentID, as.ProjectID, "assignment rank %d weight %d does not match wish rank %d weight %d",
				as.Rank, as.Weight, v.Rank, v.Weight)
		}
		perProject[as.ProjectID]++
		if perProject[as.ProjectID] > capacity[as.ProjectID] {
			return conflict(as.StudentID, as.ProjectID, "project over capacity %d", capacity[as.ProjectID])
		}
	}

	seated := make(map[string]string, len(placed))
	for _, seats := range alloc.Seats {
		limit, ok := capacity[seats.ProjectID]
		if !ok {
			return conflict("", seats.ProjectID, "seats for unknown project")
		}
		if len(seats.Students) > limit {
			return conflict("", seats.ProjectID, "%d students on %d seats", len(seats.Students), limit)
		}
		for _, id := range seats.Students {
			if prev, dup := seated[id]; dup {
				return conflict(id, seats.ProjectID, "student also seated on %s", prev)
			}
			seated[id] = seats.ProjectID
			if p, ok := placed[id]; !ok || p != seats.ProjectID {
				return conflict(id, seats.ProjectID, "seat without a matching assignment")
			}
		}
	}
	for _, as := range alloc.Assignments {
		if _, ok := seated[as.StudentID]; !ok {
			return conflict(as.StudentID, as.ProjectID, "assignment without a seat")
		}
	}

	for _, id := range alloc.Unassigned {
		if p, ok := placed[id]; ok {
			return conflict(id, p, "student both placed and unassigned")
		}
	}
	for _, id := range alloc.NoWish {
		if p, ok := placed[id]; ok {
			return conflict(id, p, "student without wishes was placed")
		}
	}
	return nil
}
