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
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed CheckpointSaver.
//
// Designed for production runs requiring persistence across process
// restarts, distributed workers sharing a run, or audit-trail retention
// of superstep history. Uses connection pooling; DDL runs once at open.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a MySQL-backed CheckpointSaver. dsn follows the.
// go-sql-driver/mysql DSN format, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true".
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id VARCHAR(191) NOT NULL,
			checkpoint_id VARCHAR(191) NOT NULL,
			parent_id VARCHAR(191) NOT NULL DEFAULT '',
			source VARCHAR(64) NOT NULL DEFAULT '',
			step INT NOT NULL DEFAULT 0,
			data LONGTEXT NOT NULL,
			idempotency_key VARCHAR(191) NOT NULL DEFAULT '',
			created_at DATETIME(6) NOT NULL,
			PRIMARY KEY (run_id, checkpoint_id),
			INDEX idx_checkpoints_run (run_id, created_at)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	idempotencyTable := `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key_value VARCHAR(191) NOT NULL PRIMARY KEY,
			created_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, idempotencyTable); err != nil {
		return fmt.Errorf("failed to create idempotency_keys table: %w", err)
	}

	eventsOutboxTable := `
		CREATE TABLE IF NOT EXISTS events_outbox (
			id VARCHAR(191) NOT NULL PRIMARY KEY,
			run_id VARCHAR(191) NOT NULL,
			event_data LONGTEXT NOT NULL,
			emitted_at DATETIME(6) NULL,
			created_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_events_pending (emitted_at, created_at)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, eventsOutboxTable); err != nil {
		return fmt.Errorf("failed to create events_outbox table: %w", err)
	}

	return nil
}

// Put implements CheckpointSaver.
func (s *MySQLStore) Put(ctx context.Context, config RunConfig, cp *graph.Checkpoint, meta CheckpointMetadata) (RunConfig, error) {
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
			`INSERT IGNORE INTO idempotency_keys (key_value) VALUES (?)`, cp.IdempotencyKey); err != nil {
			return RunConfig{}, fmt.Errorf("insert idempotency key: %w", err)
		}
	}

	return RunConfig{RunID: config.RunID, CheckpointID: cp.ID}, nil
}

// GetTuple implements CheckpointSaver.
func (s *MySQLStore) GetTuple(ctx context.Context, config RunConfig) (CheckpointTuple, error) {
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
func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]CheckpointTuple, error) {
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
func (s *MySQLStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
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
func (s *MySQLStore) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
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
func (s *MySQLStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
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

// EnqueueEvent persists an event to the outbox.
func (s *MySQLStore) EnqueueEvent(ctx context.Context, e emit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT IGNORE INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)`,
		e.ID, e.RunID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close implements CheckpointSaver.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
