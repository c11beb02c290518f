package emit

// Mode selects which class of event a subscriber wants to receive (§4.6).
// Subscribers request any subset; the loop filters at emission time.
type Mode int

const (
	// ModeValues carries a full channel-value snapshot after each superstep.
	ModeValues Mode = iota
	// ModeUpdates carries per-node incremental output after each superstep.
	ModeUpdates
	// ModeTasks carries start/end notifications for each task.
	ModeTasks
	// ModeDebug carries internal state-machine transitions.
	ModeDebug
)

func (m Mode) String() string {
	switch m {
	case ModeValues:
		return "values"
	case ModeUpdates:
		return "updates"
	case ModeTasks:
		return "tasks"
	case ModeDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Event represents an observability event emitted during superstep execution.
//
// Events provide detailed insight into engine behavior:
//   - Task execution start/complete
//   - Channel-value snapshots
//   - Checkpoint commits
//   - Interrupts and errors
//
// Events are emitted to an Emitter, which can log to stdout/stderr, send to
// OpenTelemetry, or buffer for test assertions.
type Event struct {
	// ID uniquely identifies this event, for transactional-outbox dedup.
	ID string

	// Mode classifies the event for subscriber filtering (§4.6).
	Mode Mode

	// RunID identifies the run that emitted this event.
	RunID string

	// SuperstepID is the superstep number this event belongs to (0 for.
	// Init-phase events).
	SuperstepID int

	// CheckpointID is the checkpoint committed by this superstep, set on.
	// post-merge events; empty for pre-superstep/task events.
	CheckpointID string

	// NodeID identifies which node emitted this event (Tasks/Updates.
	// modes). Empty for superstep-level events.
	NodeID string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys: "duration_ms", "error", "retryable", "channel_values".
	Meta map[string]interface{}
}
