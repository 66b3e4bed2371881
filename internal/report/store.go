// Package report persists compliance runs so results can be compared
// across releases of the service under test.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vinhnx/openresponses/internal/runner"
)

// Run is one recorded compliance run.
type Run struct {
	ID         string
	Target     string
	Model      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Summary    runner.Summary
}

// Store is a SQLite-backed archive of runs and their per-test results.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			model TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			passed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			test_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			stream_events INTEGER NOT NULL DEFAULT 0,
			errors TEXT,
			request TEXT,
			response TEXT,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, test_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run and returns its id.
func (s *Store) BeginRun(ctx context.Context, target, model string) (string, error) {
	id := "run_" + uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, model, started_at) VALUES (?, ?, ?, ?)`,
		id, target, model, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// RecordResult stores one terminal result. Calling it again for the
// same test replaces the previous row, matching the result's
// write-once-then-immutable lifecycle.
func (s *Store) RecordResult(ctx context.Context, runID string, res runner.Result) error {
	errorsJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	var requestJSON []byte
	if res.Request != nil {
		if requestJSON, err = json.Marshal(res.Request); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results
		 (run_id, test_id, name, status, duration_ms, stream_events, errors, request, response, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.ID, res.Name, string(res.Status), res.DurationMS, res.StreamEvents,
		string(errorsJSON), nullable(requestJSON), nullable(res.Response), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and summary counts.
func (s *Store) FinishRun(ctx context.Context, runID string, sum runner.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, passed = ?, failed = ?, total = ? WHERE id = ?`,
		time.Now().UTC(), sum.Passed, sum.Failed, sum.Total, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target, model, started_at, finished_at, passed, failed, total
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Target, &r.Model, &r.StartedAt, &finished,
			&r.Summary.Passed, &r.Summary.Failed, &r.Summary.Total); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Results returns a run's per-test results in recorded order.
func (s *Store) Results(ctx context.Context, runID string) ([]runner.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id, name, status, duration_ms, stream_events, errors, request, response
		 FROM results WHERE run_id = ? ORDER BY recorded_at, test_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []runner.Result
	for rows.Next() {
		var res runner.Result
		var status string
		var errorsJSON, requestJSON, responseJSON sql.NullString
		if err := rows.Scan(&res.ID, &res.Name, &status, &res.DurationMS, &res.StreamEvents,
			&errorsJSON, &requestJSON, &responseJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Status = runner.Status(status)
		if errorsJSON.Valid && errorsJSON.String != "" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &res.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
			}
		}
		if requestJSON.Valid && requestJSON.String != "" {
			if err := json.Unmarshal([]byte(requestJSON.String), &res.Request); err != nil {
				return nil, fmt.Errorf("failed to unmarshal request: %w", err)
			}
		}
		if responseJSON.Valid {
			res.Response = json.RawMessage(responseJSON.String)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
