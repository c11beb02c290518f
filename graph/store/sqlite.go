package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/m-corp/pregelgraph/graph"
	"github.com/m-corp/pregelgraph/graph/emit"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed CheckpointSaver.
//
// Designed for development, testing, and single-process runs requiring
// durability without an external database. Uses WAL mode over a single
// pooled connection, so reads and writes are serialized through it.
//
// Schema:
//   - checkpoints: one row per committed superstep checkpoint
//   - idempotency_keys: duplicate-commit prevention
//   - events_outbox: transactional event delivery
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed CheckpointSaver at path.
// Use ":memory:" for an ephemeral in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			idempotency_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, checkpoint_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_run: %w", err)
	}

	idempotencyTable := `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key_value TEXT NOT NULL PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, idempotencyTable); err != nil {
		return fmt.Errorf("failed to create idempotency_keys table: %w", err)
	}

	eventsOutboxTable := `
		CREATE TABLE IF NOT EXISTS events_outbox (
			id TEXT NOT NULL PRIMARY KEY,
			run_id TEXT NOT NULL,
			event_data TEXT NOT NULL,
			emitted_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, eventsOutboxTable); err != nil {
		return fmt.Errorf("failed to create events_outbox table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_events_pending ON events_outbox(emitted_at, created_at)"); err != nil {
		return fmt.Errorf("failed to create idx_events_pending: %w", err)
	}

	return nil
}

// Put implements CheckpointSaver.
func (s *SQLiteStore) Put(ctx context.Context, config RunConfig, cp *graph.Checkpoint, meta CheckpointMetadata) (RunConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return RunConfig{}, fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, checkpoint_id, parent_id, source, step, data, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		config.RunID, cp.ID, cp.ParentID, meta.Source, meta.Step, string(data), cp.IdempotencyKey, time.Now().UTC())
	if err != nil {
		return RunConfig{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	if cp.IdempotencyKey != "" {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO idempotency_keys (key_value) VALUES (?)`, cp.IdempotencyKey); err != nil {
			return RunConfig{}, fmt.Errorf("insert idempotency key: %w", err)
		}
	}

	return RunConfig{RunID: config.RunID, CheckpointID: cp.ID}, nil
}

// GetTuple implements CheckpointSaver.
func (s *SQLiteStore) GetTuple(ctx context.Context, config RunConfig) (CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row *sql.Row
	if config.CheckpointID != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT checkpoint_id, parent_id, source, step, data FROM checkpoints
			 WHERE run_id = ? AND checkpoint_id = ?`, config.RunID, config.CheckpointID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT checkpoint_id, parent_id, source, step, data FROM checkpoints
			 WHERE run_id = ? ORDER BY created_at DESC LIMIT 1`, config.RunID)
	}

	var cpID, parentID, source, data string
	var step int
	if err := row.Scan(&cpID, &parentID, &source, &step, &data); err != nil {
		if err == sql.ErrNoRows {
			return CheckpointTuple{}, ErrNotFound
		}
		return CheckpointTuple{}, fmt.Errorf("scan checkpoint: %w", err)
	}

	var cp graph.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return CheckpointTuple{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	tuple := CheckpointTuple{
		Config:     RunConfig{RunID: config.RunID, CheckpointID: cpID},
		Checkpoint: &cp,
		Metadata:   CheckpointMetadata{Source: source, Step: step, ParentID: parentID},
	}
	if parentID != "" {
		tuple.ParentConfig = &RunConfig{RunID: config.RunID, CheckpointID: parentID}
	}
	return tuple, nil
}

// List implements CheckpointSaver.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT checkpoint_id, parent_id, source, step, data FROM checkpoints WHERE run_id = ?`
	args := []interface{}{filter.RunID}
	if filter.Before != "" {
		query += ` AND created_at < (SELECT created_at FROM checkpoints WHERE run_id = ? AND checkpoint_id = ?)`
		args = append(args, filter.RunID, filter.Before)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var tuples []CheckpointTuple
	for rows.Next() {
		var cpID, parentID, source, data string
		var step int
		if err := rows.Scan(&cpID, &parentID, &source, &step, &data); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		var cp graph.Checkpoint
		if err := json.Unmarshal([]byte(data), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		tuple := CheckpointTuple{
			Config:     RunConfig{RunID: filter.RunID, CheckpointID: cpID},
			Checkpoint: &cp,
			Metadata:   CheckpointMetadata{Source: source, Step: step, ParentID: parentID},
		}
		if parentID != "" {
			tuple.ParentConfig = &RunConfig{RunID: filter.RunID, CheckpointID: parentID}
		}
		tuples = append(tuples, tuple)
	}
	return tuples, rows.Err()
}

// CheckIdempotency implements CheckpointSaver.
func (s *SQLiteStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM idempotency_keys WHERE key_value = ?`, key).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check idempotency: %w", err)
	}
	return true, nil
}

// PendingEvents implements CheckpointSaver.
func (s *SQLiteStore) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, event_data FROM events_outbox WHERE emitted_at IS NULL ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []emit.Event
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var e emit.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkEventsEmitted implements CheckpointSaver.
func (s *SQLiteStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range eventIDs {
		if _, err := s.db.ExecContext(ctx, `UPDATE events_outbox SET emitted_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("mark event emitted: %w", err)
		}
	}
	return nil
}

// EnqueueEvent persists an event to the outbox within the same store so it
// survives a crash between commit and emission.
func (s *SQLiteStore) EnqueueEvent(ctx context.Context, e emit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)`,
		e.ID, e.RunID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close implements CheckpointSaver.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
