// Package history persists run summaries in a local SQLite database. It
// backs trend queries on the CLI and recovery detection for notifications.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	environment      TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMP NOT NULL,
	duration_ms      INTEGER NOT NULL,
	workers          INTEGER NOT NULL DEFAULT 0,
	total            INTEGER NOT NULL,
	passed           INTEGER NOT NULL,
	failed           INTEGER NOT NULL,
	skipped          INTEGER NOT NULL,
	fixme            INTEGER NOT NULL,
	expected_failure INTEGER NOT NULL,
	unexpected_pass  INTEGER NOT NULL,
	incomplete       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_env_started ON runs (environment, started_at DESC);
`

// Entry is one stored run summary.
type Entry struct {
	RunID       string
	Environment string
	StartedAt   time.Time
	Duration    time.Duration
	Workers     int
	Summary     results.Summary
	Incomplete  bool
}

// Store is a SQLite-backed run archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record archives one finished run.
func (s *Store) Record(run *results.RunResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, environment, started_at, duration_ms, workers,
			total, passed, failed, skipped, fixme, expected_failure,
			unexpected_pass, incomplete
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Environment, run.StartedAt, run.Duration.Milliseconds(),
		run.Workers, run.Summary.Total, run.Summary.Passed, run.Summary.Failed,
		run.Summary.Skipped, run.Summary.Fixme, run.Summary.ExpectedFailure,
		run.Summary.UnexpectedPass, boolInt(run.Incomplete),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recovered reports whether this run fixed a previously failing state: the
// most recent archived run in the same environment had failures and this
// one has none. The current run must not be archived yet when asking.
func (s *Store) Recovered(run *results.RunResult) (bool, error) {
	if run.Summary.Failures() > 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var failed, unexpected int
	err := s.db.QueryRowContext(ctx, `
		SELECT failed, unexpected_pass FROM runs
		WHERE environment = ? AND id != ?
		ORDER BY started_at DESC LIMIT 1`,
		run.Environment, run.RunID,
	).Scan(&failed, &unexpected)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying previous run: %w", err)
	}
	return failed+unexpected > 0, nil
}

// Recent returns the latest archived runs, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, environment, started_at, duration_ms, workers,
			total, passed, failed, skipped, fixme, expected_failure,
			unexpected_pass, incomplete
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var durMS int64
		var incomplete int
		if err := rows.Scan(
			&e.RunID, &e.Environment, &e.StartedAt, &durMS, &e.Workers,
			&e.Summary.Total, &e.Summary.Passed, &e.Summary.Failed,
			&e.Summary.Skipped, &e.Summary.Fixme, &e.Summary.ExpectedFailure,
			&e.Summary.UnexpectedPass, &incomplete,
		); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.Incomplete = incomplete != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
