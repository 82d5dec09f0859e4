package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/metrics"
)

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithDefaultMaxChoice sets max_choice for levels without a deadline row.
func WithDefaultMaxChoice(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.defaultMaxChoice = n
		}
	}
}

// Source reads the catalog tables.
type Source struct {
	conn             *Connection
	defaultMaxChoice int
}

var _ repository.Source = (*Source)(nil)

// NewSource creates a source on conn.
func NewSource(conn *Connection, opts ...Option) *Source {
	s := &Source{conn: conn, defaultMaxChoice: repository.DefaultMaxChoice}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(backendName, op, float64(time.Since(start).Milliseconds()))
}

// LoadLevel reads the level inside one repeatable-read transaction so that
// students, projects and voeux come from the same snapshot.
func (s *Source) LoadLevel(ctx context.Context, level model.Level) (model.LevelInput, error) {
	defer observe("load_level", time.Now())

	in := model.LevelInput{Level: level, Students: []model.Student{}, Projects: []model.Project{}}
	err := s.conn.WithTx(ctx, readOnlySnapshot, func(tx pgx.Tx) error {
		d, err := s.deadline(ctx, tx, level)
		if err != nil {
			return err
		}
		in.MaxChoice = d.MaxChoice

		if in.Projects, err = s.projects(ctx, tx, level); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id, name, level FROM students WHERE level = $1 ORDER BY id`, string(level))
		if err != nil {
			return fmt.Errorf("query students: %w", err)
		}
		index := make(map[string]int)
		for rows.Next() {
			var st model.Student
			if err := rows.Scan(&st.ID, &st.Name, &st.Level); err != nil {
				rows.Close()
				return fmt.Errorf("scan student: %w", err)
			}
			st.Voeux = []model.Voeu{}
			index[st.ID] = len(in.Students)
			in.Students = append(in.Students, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("query students: %w", err)
		}

		rows, err = tx.Query(ctx, `
			SELECT v.student_id, v.project_id, v.rank, v.weight
			FROM voeux v
			JOIN students s ON s.id = v.student_id
			JOIN projects p ON p.id = v.project_id
			WHERE s.level = $1 AND p.level = $1
			ORDER BY v.student_id, v.rank`, string(level))
		if err != nil {
			return fmt.Errorf("query voeux: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var v model.Voeu
			if err := rows.Scan(&v.StudentID, &v.ProjectID, &v.Rank, &v.Weight); err != nil {
				return fmt.Errorf("scan voeu: %w", err)
			}
			if i, ok := index[v.StudentID]; ok {
				in.Students[i].Voeux = append(in.Students[i].Voeux, v)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return model.LevelInput{}, err
	}
	return in, nil
}

func (s *Source) Deadline(ctx context.Context, level model.Level) (model.Deadline, error) {
	defer observe("deadline", time.Now())
	return s.deadline(ctx, s.conn, level)
}

// querier is satisfied by both *Connection and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Source) deadline(ctx context.Context, q querier, level model.Level) (model.Deadline, error) {
	d := model.Deadline{Level: level, MaxChoice: s.defaultMaxChoice}
	var cutoff *time.Time
	err := q.QueryRow(ctx,
		`SELECT cutoff, max_choice FROM deadlines WHERE level = $1 AND type = $2`,
		string(level), model.DeadlineTypeVoeux,
	).Scan(&cutoff, &d.MaxChoice)
	switch {
	case IsNoRows(err):
		return d, nil
	case err != nil:
		return model.Deadline{}, fmt.Errorf("query deadline: %w", err)
	}
	if cutoff != nil {
		d.Cutoff = *cutoff
	}
	return d, nil
}

func (s *Source) Projects(ctx context.Context, level model.Level) ([]model.Project, error) {
	defer observe("projects", time.Now())
	return s.projects(ctx, s.conn, level)
}

func (s *Source) projects(ctx context.Context, q querier, level model.Level) ([]model.Project, error) {
	rows, err := q.Query(ctx,
		`SELECT id, title, supervisor, level, number_groups FROM projects WHERE level = $1 ORDER BY id`, string(level))
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []model.Project{}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Supervisor, &p.Level, &p.Capacity); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Source) Student(ctx context.Context, id string) (model.Student, error) {
	defer observe("student", time.Now())

	var st model.Student
	err := s.conn.QueryRow(ctx, `SELECT id, name, level FROM students WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.Level)
	if IsNoRows(err) {
		return model.Student{}, fmt.Errorf("student %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Student{}, fmt.Errorf("query student: %w", err)
	}

	rows, err := s.conn.Query(ctx,
		`SELECT student_id, project_id, rank, weight FROM voeux WHERE student_id = $1 ORDER BY rank`, id)
	if err != nil {
		return model.Student{}, fmt.Errorf("query voeux: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.Voeu
		if err := rows.Scan(&v.StudentID, &v.ProjectID, &v.Rank, &v.Weight); err != nil {
			return model.Student{}, fmt.Errorf("scan voeu: %w", err)
		}
		st.Voeux = append(st.Voeux, v)
	}
	return st, rows.Err()
}

// ReplaceVoeux swaps the wish list in one transaction.
func (s *Source) ReplaceVoeux(ctx context.Context, studentID string, voeux []model.Voeu) error {
	defer observe("replace_voeux", time.Now())

	return s.conn.WithTx(ctx, readWrite, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM students WHERE id = $1 FOR UPDATE`, studentID).Scan(&exists); err != nil {
			if IsNoRows(err) {
				return fmt.Errorf("student %s: %w", studentID, repository.ErrNotFound)
			}
			return fmt.Errorf("lock student: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM voeux WHERE student_id = $1`, studentID); err != nil {
			return fmt.Errorf("delete voeux: %w", err)
		}
		for _, v := range voeux {
			_, err := tx.Exec(ctx,
				`INSERT INTO voeux (student_id, project_id, rank, weight) VALUES ($1, $2, $3, $4)`,
				studentID, v.ProjectID, v.Rank, v.Weight)
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("project %s: %w", v.ProjectID, repository.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("insert voeu: %w", err)
			}
		}
		return nil
	})
}
