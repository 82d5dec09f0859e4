package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
)

// ResultStore keeps the latest completed run per key in assignment_runs,
// with the flat assignment list alongside for SQL consumers.
type ResultStore struct {
	conn *Connection
}

var _ repository.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a store on conn.
func NewResultStore(conn *Connection) *ResultStore {
	return &ResultStore{conn: conn}
}

// Replace swaps the stored run and its assignments in one transaction.
func (s *ResultStore) Replace(ctx context.Context, rec repository.Record) error {
	defer observe("replace_result", time.Now())

	alloc, err := json.Marshal(rec.Allocation)
	if err != nil {
		return fmt.Errorf("encode allocation: %w", err)
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return s.conn.WithTx(ctx, readWrite, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO assignment_runs (level, algorithm, run_id, completed_at, allocation, report)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (level, algorithm) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				completed_at = EXCLUDED.completed_at,
				allocation = EXCLUDED.allocation,
				report = EXCLUDED.report`,
			string(rec.Key.Level), string(rec.Key.Algorithm), rec.RunID, rec.CompletedAt, alloc, report)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM assignments WHERE level = $1 AND algorithm = $2`,
			string(rec.Key.Level), string(rec.Key.Algorithm)); err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}

		rows := make([][]any, 0, len(rec.Allocation.Assignments))
		for _, as := range rec.Allocation.Assignments {
			rows = append(rows, []any{
				string(rec.Key.Level), string(rec.Key.Algorithm), as.StudentID, as.ProjectID, as.Rank, as.Weight,
			})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"assignments"},
			[]string{"level", "algorithm", "student_id", "project_id", "rank", "weight"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy assignments: %w", err)
		}
		return nil
	})
}

func (s *ResultStore) Latest(ctx context.Context, key model.RunKey) (repository.Record, error) {
	defer observe("latest_result", time.Now())

	rec := repository.Record{Key: key}
	var alloc, report []byte
	err := s.conn.QueryRow(ctx, `
		SELECT run_id, completed_at, allocation, report
		FROM assignment_runs WHERE level = $1 AND algorithm = $2`,
		string(key.Level), string(key.Algorithm),
	).Scan(&rec.RunID, &rec.CompletedAt, &alloc, &report)
	if IsNoRows(err) {
		return repository.Record{}, fmt.Errorf("run %s: %w", key, repository.ErrNotFound)
	}
	if err != nil {
		return repository.Record{}, fmt.Errorf("query run: %w", err)
	}

	if err := json.Unmarshal(alloc, &rec.Allocation); err != nil {
		return repository.Record{}, fmt.Errorf("decode allocation: %w", err)
	}
	if err := json.Unmarshal(report, &rec.Report); err != nil {
		return repository.Record{}, fmt.Errorf("decode report: %w", err)
	}
	return rec, nil
}
