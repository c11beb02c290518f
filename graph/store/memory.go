package store

import (
	"context"
	"sort"
	"sync"

	"github.com/m-corp/pregelgraph/graph"
	"github.com/m-corp/pregelgraph/graph/emit"
)

// MemStore is an in-memory CheckpointSaver, intended for tests and.
// single-process development runs. State does not survive process restart.
type MemStore struct {
	mu sync.RWMutex

	// checkpoints maps runID -> ordered history of stored tuples (oldest first).
	checkpoints map[string][]storedCheckpoint

	idempotencyKeys map[string]bool

	pendingEvents []emit.Event
	eventIDSet    map[string]bool
}

type storedCheckpoint struct {
	checkpoint *graph.Checkpoint
	meta       CheckpointMetadata
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints:     make(map[string][]storedCheckpoint),
		idempotencyKeys: make(map[string]bool),
		eventIDSet:      make(map[string]bool),
	}
}

// Put implements CheckpointSaver.
func (s *MemStore) Put(ctx context.Context, config RunConfig, cp *graph.Checkpoint, meta CheckpointMetadata) (RunConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[config.RunID] = append(s.checkpoints[config.RunID], storedCheckpoint{
		checkpoint: cp,
		meta:       meta,
	})
	if cp.IdempotencyKey != "" {
		s.idempotencyKeys[cp.IdempotencyKey] = true
	}
	return RunConfig{RunID: config.RunID, CheckpointID: cp.ID}, nil
}

// GetTuple implements CheckpointSaver.
func (s *MemStore) GetTuple(ctx context.Context, config RunConfig) (CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.checkpoints[config.RunID]
	if len(history) == 0 {
		return CheckpointTuple{}, ErrNotFound
	}

	idx := len(history) - 1
	if config.CheckpointID != "" {
		idx = -1
		for i, sc := range history {
			if sc.checkpoint.ID == config.CheckpointID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return CheckpointTuple{}, ErrNotFound
		}
	}

	sc := history[idx]
	tuple := CheckpointTuple{
		Config:     RunConfig{RunID: config.RunID, CheckpointID: sc.checkpoint.ID},
		Checkpoint: sc.checkpoint,
		Metadata:   sc.meta,
	}
	if sc.checkpoint.ParentID != "" {
		tuple.ParentConfig = &RunConfig{RunID: config.RunID, CheckpointID: sc.checkpoint.ParentID}
	}
	return tuple, nil
}

// List implements CheckpointSaver.
func (s *MemStore) List(ctx context.Context, filter ListFilter) ([]CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.checkpoints[filter.RunID]
	tuples := make([]CheckpointTuple, 0, len(history))
	for _, sc := range history {
		if filter.Before != "" && sc.checkpoint.ID == filter.Before {
			break
		}
		tuple := CheckpointTuple{
			Config:     RunConfig{RunID: filter.RunID, CheckpointID: sc.checkpoint.ID},
			Checkpoint: sc.checkpoint,
			Metadata:   sc.meta,
		}
		if sc.checkpoint.ParentID != "" {
			tuple.ParentConfig = &RunConfig{RunID: filter.RunID, CheckpointID: sc.checkpoint.ParentID}
		}
		tuples = append(tuples, tuple)
	}

	// Newest first.
	sort.SliceStable(tuples, func(i, j int) bool {
		return tuples[i].Checkpoint.Timestamp.After(tuples[j].Checkpoint.Timestamp)
	})
	if filter.Limit > 0 && len(tuples) > filter.Limit {
		tuples = tuples[:filter.Limit]
	}
	return tuples, nil
}

// CheckIdempotency implements CheckpointSaver.
func (s *MemStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idempotencyKeys[key], nil
}

// PendingEvents implements CheckpointSaver.
func (s *MemStore) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.pendingEvents) {
		limit = len(s.pendingEvents)
	}
	out := make([]emit.Event, limit)
	copy(out, s.pendingEvents[:limit])
	return out, nil
}

// MarkEventsEmitted implements CheckpointSaver.
func (s *MemStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emitted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		emitted[id] = true
	}
	remaining := s.pendingEvents[:0]
	for _, e := range s.pendingEvents {
		if !emitted[e.ID] {
			remaining = append(remaining, e)
		}
	}
	s.pendingEvents = remaining
	return nil
}

// EnqueueEvent adds an event to the pending outbox. Used by the Superstep.
// Loop when persisting a superstep's emitted events alongside its checkpoint.
func (s *MemStore) EnqueueEvent(e emit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventIDSet[e.ID] {
		return
	}
	s.eventIDSet[e.ID] = true
	s.pendingEvents = append(s.pendingEvents, e)
}

// Close implements CheckpointSaver. MemStore holds no external resources.
func (s *MemStore) Close() error {
	return nil
}
