// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Checkpoint Model (C2): immutable snapshots of channel state (§3.1, §4.2).

// ErrReplayMismatch is returned when recorded I/O hash does not match current.
// execution during replay. Indicates non-deterministic node behavior.
var ErrReplayMismatch = errors.New("replay mismatch: recorded I/O hash mismatch")

// ErrNoProgress is returned when a superstep ends with a KindTerminal node.
// failure and the following planning step finds no further eligible tasks.
// (§7): the terminal failure did not halt the superstep — other nodes'.
// writes still merged and checkpointed — but with nothing left runnable.
// the run cannot reach ordinary termination either, so the loop surfaces.
// the failure instead of silently returning whatever partial value the.
// channels hold. Distinct from ordinary termination (Plan returning no.
// tasks with no prior terminal failure), which is not an error.
var ErrNoProgress = errors.New("no progress: no runnable tasks and no interrupt pending")

// ErrIdempotencyViolation is returned when attempting to commit a checkpoint.
// with a duplicate idempotency key, indicating the superstep was already.
// committed in a previous execution.
var ErrIdempotencyViolation = errors.New("idempotency violation: checkpoint already committed")

// ErrMaxAttemptsExceeded is returned when a task fails more times than its.
// retry policy allows.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// special channel names (§3.1, §4.3, §4.6)
const (
	// StartChannel supplies the initial graph input to the first superstep.
	StartChannel = "__start__"
	// EndChannel, if written, supplies the run's terminal value.
	EndChannel = "__end__"
	// InterruptChannel carries the most recent interrupt payload, Untracked.
	InterruptChannel = "__interrupt__"
	// ResumeChannel carries the side-channel resume value injected on resume.
	ResumeChannel = "__resume__"
)

// checkpoint metadata source tags (§3.1)
const (
	SourceInput  = "input"
	SourceStep   = "step"
	SourceUpdate    = "update"
	SourceFork      = "fork"
	SourceInterrupt = "interrupt"
)

// Checkpoint is an immutable snapshot of channel_values, channel_versions.
// and versions_seen, plus provenance (§3.1). Once constructed it is never.
// mutated; "updates" always produce a new child checkpoint.
type Checkpoint struct {
	// ID is this checkpoint's identifier, assigned by the surrounding.
	// persistence collaborator (or generated here via uuid when none is.
	// supplied); the core treats it and ParentID as opaque strings.
	ID string `json:"id"`

	// ChannelValues maps channel name to its current snapshot value.
	// Untracked channels never appear here (invariant 6).
	ChannelValues map[string]any `json:"channel_values"`

	// ChannelVersions maps channel name to its current monotonic version.
	ChannelVersions map[string]uint64 `json:"channel_versions"`

	// VersionsSeen maps node name to the last version of each channel that.
	// node has observed.
	VersionsSeen map[string]map[string]uint64 `json:"versions_seen"`

	// Timestamp records wall-clock creation time.
	Timestamp time.Time `json:"timestamp"`

	// ParentID optionally references the previous checkpoint, forming a.
	// linear history or branch tree.
	ParentID string `json:"parent_id,omitempty"`

	// Metadata is a free-form string-keyed record; Metadata["source"] is.
	// one of SourceInput/SourceStep/SourceUpdate/SourceFork/SourceInterrupt.
	Metadata map[string]any `json:"metadata"`

	// IdempotencyKey prevents duplicate commits of the same superstep;.
	// format "sha256:hex".
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// NewCheckpointID generates a fresh checkpoint identifier.
func NewCheckpointID() string {
	return uuid.NewString()
}

// cloneCheckpoint returns a deep-enough copy suitable for producing a child.
// checkpoint: map tops are copied so mutating the child never mutates the.
// parent, but leaf Values are treated as immutable once written (per §3.1,.
// Values are "opaque, cloneable data"; the engine never mutates a Value in.
// place after it is stored in a channel).
func cloneCheckpoint(cp *Checkpoint) *Checkpoint {
	out := &Checkpoint{
		ID:              cp.ID,
		ChannelValues:   make(map[string]any, len(cp.ChannelValues)),
		ChannelVersions: make(map[string]uint64, len(cp.ChannelVersions)),
		VersionsSeen:    make(map[string]map[string]uint64, len(cp.VersionsSeen)),
		Timestamp:       cp.Timestamp,
		ParentID:        cp.ParentID,
		Metadata:        make(map[string]any, len(cp.Metadata)),
		IdempotencyKey:  cp.IdempotencyKey,
	}
	for k, v := range cp.ChannelValues {
		out.ChannelValues[k] = v
	}
	for k, v := range cp.ChannelVersions {
		out.ChannelVersions[k] = v
	}
	for node, seen := range cp.VersionsSeen {
		m := make(map[string]uint64, len(seen))
		for ch, v := range seen {
			m[ch] = v
		}
		out.VersionsSeen[node] = m
	}
	for k, v := range cp.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// computeIdempotencyKey hashes (runID, superstep, sorted pending writes) so.
// identical execution contexts yield identical keys, enabling exactly-once.
// checkpoint commits across retries or crash recovery.
func computeIdempotencyKey(runID string, superstep int, writes []PendingWrite) (string, error) {
	h := sha256.New()
	h.Write([]byte(runID))

	sorted := make([]PendingWrite, len(writes))
	copy(sorted, writes)
	sort.Slice(sorted, func(i, j int) bool {
		return lessPendingWrite(sorted[i], sorted[j])
	})

	enc := json.NewEncoder(h)
	if err := enc.Encode(superstep); err != nil {
		return "", err
	}
	for _, w := range sorted {
		if err := enc.Encode(w); err != nil {
			return "", err
		}
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// lessPendingWrite implements the §3.2 invariant 5 / §9 mandated sort-last.
// tie-break: (SourceNodeName, SourcePathIndex), applied uniformly across.
// every channel variant by the Write Merger.
func lessPendingWrite(a, b PendingWrite) bool {
	if a.SourceNodeName != b.SourceNodeName {
		return a.SourceNodeName < b.SourceNodeName
	}
	if a.TargetChannel != b.TargetChannel {
		return a.TargetChannel < b.TargetChannel
	}
	return a.SourcePathIndex < b.SourcePathIndex
}
