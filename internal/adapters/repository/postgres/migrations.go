package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Migrations returns the schema history in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up},
		{Version: 2, Name: "create_assignment_runs", UpSQL: migration002Up},
	}
}

const migrationsTable = "schema_migrations"

// Migrate applies pending migrations, each in its own transaction.
func Migrate(ctx context.Context, conn *Connection) error {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("%w: create migrations table: %v", ErrMigrationFailed, err)
	}

	applied := make(map[int]bool)
	rows, err := conn.Query(ctx, "SELECT version FROM "+migrationsTable)
	if err != nil {
		return fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan applied: %v", ErrMigrationFailed, err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}

	for _, mig := range Migrations() {
		if applied[mig.Version] {
			continue
		}
		err := conn.WithTx(ctx, readWrite, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

const migration001Up = `
CREATE TABLE projects (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	supervisor    TEXT NOT NULL DEFAULT '',
	level         TEXT NOT NULL,
	number_groups INTEGER NOT NULL CHECK (number_groups >= 0)
);
CREATE INDEX idx_projects_level ON projects (level);

CREATE TABLE students (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	level TEXT NOT NULL
);
CREATE INDEX idx_students_level ON students (level);

CREATE TABLE voeux (
	student_id TEXT NOT NULL REFERENCES students (id) ON DELETE CASCADE,
	project_id TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	rank       INTEGER NOT NULL CHECK (rank > 0),
	weight     INTEGER NOT NULL CHECK (weight BETWEEN 0 AND 20),
	PRIMARY KEY (student_id, project_id),
	UNIQUE (student_id, rank)
);

CREATE TABLE deadlines (
	level      TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'voeux',
	cutoff     TIMESTAMPTZ,
	max_choice INTEGER NOT NULL DEFAULT 5 CHECK (max_choice > 0),
	PRIMARY KEY (level, type)
);
`

const migration002Up = `
CREATE TABLE assignment_runs (
	level        TEXT NOT NULL,
	algorithm    TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	allocation   JSONB NOT NULL,
	report       JSONB NOT NULL,
	PRIMARY KEY (level, algorithm)
);

CREATE TABLE assignments (
	level      TEXT NOT NULL,
	algorithm  TEXT NOT NULL,
	student_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	weight     INTEGER NOT NULL,
	PRIMARY KEY (level, algorithm, student_id),
	FOREIGN KEY (level, algorithm) REFERENCES assignment_runs (level, algorithm) ON DELETE CASCADE
);
`
