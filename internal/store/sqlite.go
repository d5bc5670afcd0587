// Package store persists the agent's workload states and instance logs in
// SQLite so they survive restarts and can be served by the API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/anvil/internal/model"

	_ "modernc.org/sqlite"
)

const createWorkloadStatesTable = `
CREATE TABLE IF NOT EXISTS workload_states (
    name        TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    exit_code   INTEGER,
    error       TEXT NOT NULL DEFAULT '',
    updated_at  DATETIME NOT NULL
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS log_lines (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    instance_id TEXT NOT NULL,
    name        TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    line        TEXT NOT NULL,
    created_at  DATETIME NOT NULL
)`

const createLogLinesIndex = `
CREATE INDEX IF NOT EXISTS idx_log_lines_instance ON log_lines (instance_id, seq)`

// ErrNotFound is returned when a workload has no persisted state.
var ErrNotFound = errors.New("workload not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each :memory: connection is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createWorkloadStatesTable, createLogLinesTable, createLogLinesIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertWorkloadState records the latest state of a workload, replacing any
// earlier record for the same name.
func (s *SQLiteStore) UpsertWorkloadState(ctx context.Context, st model.WorkloadState) error {
	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workload_states (name, instance_id, state, exit_code, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			instance_id = excluded.instance_id,
			state       = excluded.state,
			exit_code   = excluded.exit_code,
			error       = excluded.error,
			updated_at  = excluded.updated_at`,
		st.Name, st.InstanceID, st.State, st.ExitCode, st.Error, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert workload state: %w", err)
	}
	return nil
}

// GetWorkloadState retrieves the persisted state of a workload by name.
func (s *SQLiteStore) GetWorkloadState(ctx context.Context, name model.WorkloadName) (*model.WorkloadState, error) {
	st := &model.WorkloadState{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, instance_id, state, exit_code, error, updated_at
		FROM workload_states WHERE name = ?`, name,
	).Scan(&st.Name, &st.InstanceID, &st.State, &st.ExitCode, &st.Error, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workload state: %w", err)
	}
	return st, nil
}

// ListWorkloadStates returns every persisted state ordered by name.
func (s *SQLiteStore) ListWorkloadStates(ctx context.Context) ([]model.WorkloadState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, instance_id, state, exit_code, error, updated_at
		FROM workload_states ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list workload states: %w", err)
	}
	defer rows.Close()

	states := []model.WorkloadState{}
	for rows.Next() {
		var st model.WorkloadState
		if err := rows.Scan(&st.Name, &st.InstanceID, &st.State, &st.ExitCode, &st.Error, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workload state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workload states: %w", err)
	}
	return states, nil
}

// InsertLogLine appends one output line of an instance.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, instanceID string, name model.WorkloadName, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_lines (instance_id, name, seq, line, created_at) VALUES (?, ?, ?, ?, ?)`,
		instanceID, name, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns the persisted lines of an instance in sequence order.
func (s *SQLiteStore) GetLogLines(ctx context.Context, instanceID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, name, seq, line, created_at
		FROM log_lines WHERE instance_id = ? ORDER BY seq`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	lines := []model.LogLine{}
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.InstanceID, &l.Name, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}
