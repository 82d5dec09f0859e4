// Package simulate generates synthetic catalogs and exercises a running
// voeux service against them.
package simulate

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/okian/voeux/internal/adapters/repository/memory"
	"github.com/okian/voeux/internal/domain/model"
)

// Generator bounds.
const (
	minGroups = 1
	maxGroups = 5
	minWeight = 1
)

// DefaultLevels are the levels generated when none are given.
var DefaultLevels = []model.Level{"L1", "L2", "L3", "M1", "M2"}

var (
	subjects    = []string{"Compilers", "Graph Mining", "Robotics", "Cryptography", "Databases", "Vision", "Networks", "Scheduling"}
	flavours    = []string{"Applied", "Distributed", "Adaptive", "Secure", "Incremental", "Verified"}
	supervisors = []string{"Dr. Lee", "Dr. Roy", "Pr. Diallo", "Dr. Moreau", "Pr. Haddad", "Dr. Novak"}
	firstNames  = []string{"Ada", "Ben", "Chloe", "Driss", "Emma", "Farid", "Gina", "Hugo", "Ines", "Jules"}
)

// GenerateOptions shape a synthetic catalog.
type GenerateOptions struct {
	Levels           []model.Level
	StudentsPerLevel int
	ProjectsPerLevel int
	MaxChoice        int
	// Cutoff is written on every deadline; zero leaves submissions open.
	Cutoff time.Time
	Seed   uint64
}

func (o *GenerateOptions) normalize() {
	if len(o.Levels) == 0 {
		o.Levels = DefaultLevels
	}
	if o.StudentsPerLevel <= 0 {
		o.StudentsPerLevel = 30
	}
	if o.ProjectsPerLevel <= 0 {
		o.ProjectsPerLevel = 10
	}
	if o.MaxChoice <= 0 {
		o.MaxChoice = 5
	}
}

// Generate builds a catalog. Every student wishes for up to MaxChoice
// shuffled projects of their own level with non-increasing weights, and
// every project opens between 1 and 5 groups. The same seed yields the
// same catalog.
func Generate(opts GenerateOptions) memory.CatalogFile {
	opts.normalize()
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	file := memory.CatalogFile{
		Deadlines: make([]model.Deadline, 0, len(opts.Levels)),
		Projects:  make([]model.Project, 0, len(opts.Levels)*opts.ProjectsPerLevel),
		Students:  make([]model.Student, 0, len(opts.Levels)*opts.StudentsPerLevel),
	}
	for _, level := range opts.Levels {
		file.Deadlines = append(file.Deadlines, model.Deadline{Level: level, Cutoff: opts.Cutoff, MaxChoice: opts.MaxChoice})

		projects := make([]model.Project, 0, opts.ProjectsPerLevel)
		for i := range opts.ProjectsPerLevel {
			projects = append(projects, model.Project{
				ID:         fmt.Sprintf("%s-P%02d", level, i+1),
				Title:      pick(r, flavours) + " " + pick(r, subjects),
				Supervisor: pick(r, supervisors),
				Level:      level,
				Capacity:   minGroups + r.IntN(maxGroups-minGroups+1),
			})
		}
		file.Projects = append(file.Projects, projects...)

		for i := range opts.StudentsPerLevel {
			id := fmt.Sprintf("%s-s%03d", level, i+1)
			file.Students = append(file.Students, model.Student{
				ID:    id,
				Name:  fmt.Sprintf("%s %s", pick(r, firstNames), id),
				Level: level,
				Voeux: wishes(r, id, projects, opts.MaxChoice),
			})
		}
	}
	return file
}

func wishes(r *rand.Rand, studentID string, projects []model.Project, maxChoice int) []model.Voeu {
	order := r.Perm(len(projects))
	n := min(maxChoice, len(order))

	weights := make([]int, n)
	for i := range weights {
		weights[i] = minWeight + r.IntN(model.MaxWeight-minWeight+1)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(weights)))

	out := make([]model.Voeu, 0, n)
	for i := range n {
		out = append(out, model.Voeu{
			StudentID: studentID,
			ProjectID: projects[order[i]].ID,
			Rank:      i + 1,
			Weight:    weights[i],
		})
	}
	return out
}

func pick(r *rand.Rand, from []string) string {
	return from[r.IntN(len(from))]
}
