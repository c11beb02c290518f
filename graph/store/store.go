// Package store provides persistence implementations for checkpoints.
package store

import (
	"context"
	"errors"

	"github.com/m-corp/pregelgraph/graph"
	"github.com/m-corp/pregelgraph/graph/emit"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// RunConfig addresses a checkpoint within a run, optionally pinning a.
// specific checkpoint ID (§6.4 "config"). An empty CheckpointID means.
// "the latest checkpoint for this run".
type RunConfig struct {
	RunID        string
	CheckpointID string
}

// CheckpointMetadata accompanies a saved checkpoint with source/step.
// bookkeeping independent of the checkpoint's own Metadata map, so stores.
// can index and filter without deserializing the full snapshot.
type CheckpointMetadata struct {
	Source   string
	Step     int
	ParentID string
}

// CheckpointTuple is a checkpoint plus its metadata and the config that.
// would resume from its parent, the unit returned by GetTuple/List (§6.4).
type CheckpointTuple struct {
	Config       RunConfig
	Checkpoint   *graph.Checkpoint
	Metadata     CheckpointMetadata
	ParentConfig *RunConfig
}

// ListFilter narrows a List query to one run, optionally to checkpoints.
// older than Before and to at most Limit entries.
type ListFilter struct {
	RunID  string
	Before string // checkpoint ID; list only checkpoints older than this
	Limit  int
}

// CheckpointSaver persists and retrieves checkpoints (§6.4). Implementations.
// must be safe for concurrent use.
//
// Saver is the durability boundary between the Superstep Loop (C6) and
// storage: the loop calls Put once per superstep after the Write Merger.
// produces a new Checkpoint, and GetTuple/List to resume or inspect history.
type CheckpointSaver interface {
	// Put persists a checkpoint under the given run, returning a RunConfig.
	// whose CheckpointID identifies the newly stored checkpoint (§6.4 "put").
	Put(ctx context.Context, config RunConfig, cp *graph.Checkpoint, meta CheckpointMetadata) (RunConfig, error)

	// GetTuple retrieves a checkpoint tuple. If config.CheckpointID is.
	// empty, the latest checkpoint for config.RunID is returned. Returns.
	// ErrNotFound if no matching checkpoint exists (§6.4 "get_tuple").
	GetTuple(ctx context.Context, config RunConfig) (CheckpointTuple, error)

	// List returns checkpoint tuples matching filter, newest first (§6.4 "list").
	List(ctx context.Context, filter ListFilter) ([]CheckpointTuple, error)

	// CheckIdempotency reports whether an idempotency key has already been.
	// committed, preventing duplicate superstep application on retry/crash.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	// PendingEvents retrieves up to limit outbox events not yet marked.
	// emitted (transactional outbox pattern for the event stream, §4.6).
	PendingEvents(ctx context.Context, limit int) ([]emit.Event, error)

	// MarkEventsEmitted marks events as delivered so PendingEvents stops.
	// returning them.
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error

	// Close releases any resources (connections, file handles) held by the saver.
	Close() error
}
