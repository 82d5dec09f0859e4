// Package matching computes capacity-respecting student to project
// allocations for one level.
package matching

import (
	"fmt"
	"sort"

	"github.com/okian/voeux/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithVerification toggles the post-run guarantee check. It is on by default.
func WithVerification(on bool) Option {
	return func(e *Engine) {
		e.verify = on
	}
}

// Engine runs the matching variants. It holds no per-run state and is safe
// for concurrent use.
type Engine struct {
	verify bool
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{verify: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run allocates students to projects with the selected variant. Equal inputs
// produce identical allocations regardless of slice order.
func (e *Engine) Run(algo model.Algorithm, in model.LevelInput) (model.Allocation, error) {
	st, err := prepare(in)
	if err != nil {
		return model.Allocation{}, err
	}

	switch algo {
	case model.AlgoGreedy:
		st.greedy()
	case model.AlgoDeferred:
		st.deferred()
	default:
		return model.Allocation{}, fmt.Errorf("%w: %q", model.ErrUnknownAlgorithm, algo)
	}

	alloc := st.allocation(in.Level, algo)
	if e.verify {
		if err := Verify(in, alloc); err != nil {
			return model.Allocation{}, err
		}
	}
	return alloc, nil
}

// candidate is a student competing for a project seat.
type candidate struct {
	student *student
	voeu    model.Voeu
}

// before orders candidates by weight descending, then student id ascending.
func (c candidate) before(o candidate) bool {
	if c.voeu.Weight != o.voeu.Weight {
		return c.voeu.Weight > o.voeu.Weight
	}
	return c.student.id < o.student.id
}

type student struct {
	id       string
	voeux    []model.Voeu
	assigned *candidate
	next     int
}

type project struct {
	id       string
	capacity int
	held     []candidate
}

func (p *project) free() int { return p.capacity - len(p.held) }

type state struct {
	students []*student
	projects []*project
	byID     map[string]*project
	noWish   []string
	maxRank  int
}

func prepare(in model.LevelInput) (*state, error) {
	st := &state{byID: make(map[string]*project, len(in.Projects)), maxRank: in.MaxChoice}

	for _, p := range in.Projects {
		if p.Capacity <= 0 {
			return nil, invalid("project %s has capacity %d", p.ID, p.Capacity)
		}
		if _, dup := st.byID[p.ID]; dup {
			return nil, invalid("project %s listed twice", p.ID)
		}
		pr := &project{id: p.ID, capacity: p.Capacity}
		st.byID[p.ID] = pr
		st.projects = append(st.projects, pr)
	}
	sort.Slice(st.projects, func(i, j int) bool { return st.projects[i].id < st.projects[j].id })

	seen := make(map[string]struct{}, len(in.Students))
	for _, s := range in.Students {
		if _, dup := seen[s.ID]; dup {
			return nil, invalid("student %s listed twice", s.ID)
		}
		seen[s.ID] = struct{}{}
		if len(s.Voeux) == 0 {
			st.noWish = append(st.noWish, s.ID)
			continue
		}

		voeux := append([]model.Voeu(nil), s.Voeux...)
		sort.SliceStable(voeux, func(i, j int) bool { return voeux[i].Rank < voeux[j].Rank })
		wished := make(map[string]struct{}, len(voeux))
		for i, v := range voeux {
			if v.Rank != i+1 {
				return nil, invalid("student %s has rank %d where %d is expected", s.ID, v.Rank, i+1)
			}
			if _, ok := st.byID[v.ProjectID]; !ok {
				return nil, invalid("student %s wishes unknown project %s", s.ID, v.ProjectID)
			}
			if _, dup := wished[v.ProjectID]; dup {
				return nil, invalid("student %s wishes project %s twice", s.ID, v.ProjectID)
			}
			wished[v.ProjectID] = struct{}{}
			if v.Rank > st.maxRank {
				st.maxRank = v.Rank
			}
		}
		st.students = append(st.students, &student{id: s.ID, voeux: voeux})
	}
	sort.Slice(st.students, func(i, j int) bool { return st.students[i].id < st.students[j].id })
	sort.Strings(st.noWish)
	return st, nil
}

func (st *state) allocation(level model.Level, algo model.Algorithm) model.Allocation {
	alloc := model.Allocation{
		Level:       level,
		Algorithm:   algo,
		Assignments: []model.Assignment{},
		Seats:       make([]model.ProjectSeats, 0, len(st.projects)),
		Unassigned:  []string{},
		NoWish:      append([]string{}, st.noWish...),
	}
	for _, s := range st.students {
		if s.assigned == nil {
			alloc.Unassigned = append(alloc.Unassigned, s.id)
			continue
		}
		v := s.assigned.voeu
		alloc.Assignments = append(alloc.Assignments, model.Assignment{
			StudentID: s.id,
			ProjectID: v.ProjectID,
			Rank:      v.Rank,
			Weight:    v.Weight,
		})
	}
	for _, p := range st.projects {
		seats := model.ProjectSeats{ProjectID: p.id, Capacity: p.capacity, Students: make([]string, 0, len(p.held))}
		for _, c := range p.held {
			seats.Students = append(seats.Students, c.student.id)
		}
		alloc.Seats = append(alloc.Seats, seats)
	}
	return alloc
}
