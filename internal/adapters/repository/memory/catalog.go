// Package memory implements the repository contracts in process memory,
// seeded from a YAML catalog file.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/metrics"
)

const backendName = "memory"

// CatalogFile is the on-disk shape of a catalog.
type CatalogFile struct {
	Deadlines []model.Deadline `yaml:"deadlines,omitempty"`
	Projects  []model.Project  `yaml:"projects"`
	Students  []model.Student  `yaml:"students"`
}

// Marshal encodes the catalog as YAML.
func (f CatalogFile) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithDefaultMaxChoice sets max_choice for levels without a deadline record.
func WithDefaultMaxChoice(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.defaultMaxChoice = n
		}
	}
}

// Catalog is an in-memory repository.Source.
type Catalog struct {
	mu               sync.RWMutex
	students         map[string]model.Student
	projects         map[string]model.Project
	deadlines        map[model.Level]model.Deadline
	defaultMaxChoice int
}

var _ repository.Source = (*Catalog)(nil)

// NewCatalog indexes a catalog. Voeux without a rank are ranked by position;
// the ranks of a student must then run 1..n without repeats.
func NewCatalog(file CatalogFile, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		students:         make(map[string]model.Student, len(file.Students)),
		projects:         make(map[string]model.Project, len(file.Projects)),
		deadlines:        make(map[model.Level]model.Deadline, len(file.Deadlines)),
		defaultMaxChoice: repository.DefaultMaxChoice,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range file.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: project without id", repository.ErrInvalidCatalog)
		}
		if _, dup := c.projects[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate project %s", repository.ErrInvalidCatalog, p.ID)
		}
		c.projects[p.ID] = p
	}
	for _, s := range file.Students {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: student without id", repository.ErrInvalidCatalog)
		}
		if _, dup := c.students[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate student %s", repository.ErrInvalidCatalog, s.ID)
		}
		voeux := make([]model.Voeu, len(s.Voeux))
		for i, v := range s.Voeux {
			v.StudentID = s.ID
			if v.Rank == 0 {
				v.Rank = i + 1
			}
			voeux[i] = v
		}
		sort.SliceStable(voeux, func(i, j int) bool { return voeux[i].Rank < voeux[j].Rank })
		for i, v := range voeux {
			if v.Rank != i+1 {
				return nil, fmt.Errorf("%w: student %s has rank %d where %d is expected",
					repository.ErrInvalidCatalog, s.ID, v.Rank, i+1)
			}
		}
		s.Voeux = voeux
		c.students[s.ID] = s
	}
	for _, d := range file.Deadlines {
		c.deadlines[d.Level] = d
	}
	return c, nil
}

// ParseCatalog decodes YAML catalog data.
func ParseCatalog(data []byte, opts ...Option) (*Catalog, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidCatalog, err)
	}
	return NewCatalog(file, opts...)
}

// LoadCatalogFile reads and decodes a YAML catalog from path.
func LoadCatalogFile(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data, opts...)
}

func (c *Catalog) LoadLevel(_ context.Context, level model.Level) (model.LevelInput, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(backendName, "load_level", float64(time.Since(start).Milliseconds()))
	}()

	c.mu.RLock()
	defer c.mu.RUnlock()

	in := model.LevelInput{
		Level:     level,
		MaxChoice: c.deadlineLocked(level).MaxChoice,
		Students:  []model.Student{},
		Projects:  c.projectsLocked(level),
	}
	for _, s := range c.students {
		if s.Level != level {
			continue
		}
		scoped := s
		scoped.Voeux = make([]model.Voeu, 0, len(s.Voeux))
		for _, v := range s.Voeux {
			if p, ok := c.projects[v.ProjectID]; ok && p.Level == level {
				scoped.Voeux = append(scoped.Voeux, v)
			}
		}
		in.Students = append(in.Students, scoped)
	}
	sort.Slice(in.Students, func(i, j int) bool { return in.Students[i].ID < in.Students[j].ID })
	return in, nil
}

func (c *Catalog) Deadline(_ context.Context, level model.Level) (model.Deadline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deadlineLocked(level), nil
}

func (c *Catalog) deadlineLocked(level model.Level) model.Deadline {
	d, ok := c.deadlines[level]
	if !ok {
		d = model.Deadline{Level: level}
	}
	if d.MaxChoice <= 0 {
		d.MaxChoice = c.defaultMaxChoice
	}
	return d
}

func (c *Catalog) Projects(_ context.Context, level model.Level) ([]model.Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectsLocked(level), nil
}

func (c *Catalog) projectsLocked(level model.Level) []model.Project {
	out := []model.Project{}
	for _, p := range c.projects {
		if p.Level == level {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Student(_ context.Context, id string) (model.Student, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.students[id]
	if !ok {
		return model.Student{}, fmt.Errorf("student %s: %w", id, repository.ErrNotFound)
	}
	s.Voeux = append([]model.Voeu(nil), s.Voeux...)
	return s, nil
}

func (c *Catalog) ReplaceVoeux(_ context.Context, studentID string, voeux []model.Voeu) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(backendName, "replace_voeux", float64(time.Since(start).Milliseconds()))
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.students[studentID]
	if !ok {
		return fmt.Errorf("student %s: %w", studentID, repository.ErrNotFound)
	}
	s.Voeux = append([]model.Voeu(nil), voeux...)
	c.students[studentID] = s
	return nil
}
