package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteArchive keeps every evaluation and final front of every run in a
// single database file, so results can be queried across runs.
type SQLiteArchive struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteArchive creates an archive backed by the database file at path.
// Init must be called before use.
func NewSQLiteArchive(path string) *SQLiteArchive {
	return &SQLiteArchive{path: path}
}

// Init opens the database and creates the tables.
func (s *SQLiteArchive) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createArchiveTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveEvaluation inserts one trace entry. Re-inserting the same index of the
// same run replaces the row.
func (s *SQLiteArchive) SaveEvaluation(ctx context.Context, runID string, entry TraceEntry) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	vector, err := json.Marshal(entry.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	objectives, err := json.Marshal(entry.Objectives)
	if err != nil {
		return fmt.Errorf("encode objectives: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO evaluations (run_id, idx, generation, route, vector, objectives, status, message, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			generation = excluded.generation,
			route = excluded.route,
			vector = excluded.vector,
			objectives = excluded.objectives,
			status = excluded.status,
			message = excluded.message,
			created = excluded.created
	`, runID, entry.Index, entry.Generation, entry.Route, string(vector), string(objectives),
		entry.Status, entry.Message, entry.Timestamp.UnixNano())
	return err
}

// Evaluations returns the archived entries of a run ordered by index.
func (s *SQLiteArchive) Evaluations(ctx context.Context, runID string) ([]TraceEntry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT idx, generation, route, vector, objectives, status, message
		FROM evaluations WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TraceEntry
	for rows.Next() {
		var (
			entry              TraceEntry
			vector, objectives string
		)
		if err := rows.Scan(&entry.Index, &entry.Generation, &entry.Route, &vector, &objectives,
			&entry.Status, &entry.Message); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vector), &entry.Vector); err != nil {
			return nil, fmt.Errorf("decode vector %s/%d: %w", runID, entry.Index, err)
		}
		if err := json.Unmarshal([]byte(objectives), &entry.Objectives); err != nil {
			return nil, fmt.Errorf("decode objectives %s/%d: %w", runID, entry.Index, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SaveResult stores the final front of a run.
func (s *SQLiteArchive) SaveResult(ctx context.Context, result *Result) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO results (run_id, strategy, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			strategy = excluded.strategy,
			payload = excluded.payload
	`, result.RunID, result.Strategy, payload)
	return err
}

// GetResult loads the front of a run. The boolean is false when the run has
// no archived result.
func (s *SQLiteArchive) GetResult(ctx context.Context, runID string) (*Result, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM results WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &result, true, nil
}

// Close closes the database. The archive can be initialized again.
func (s *SQLiteArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteArchive) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("archive is not initialized")
	}
	return s.db, nil
}

func createArchiveTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evaluations (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			route TEXT NOT NULL,
			vector TEXT NOT NULL,
			objectives TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			created INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
		CREATE TABLE IF NOT EXISTS results (
			run_id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
