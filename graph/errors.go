// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import "errors"

// Error taxonomy (§7). Every sentinel below carries a stable tag a caller
// can match with errors.Is; EngineError wraps one with a message and an
// optional cause for logs.

// ErrChannelEmpty is returned by Channel.Read on a channel that has not.
// yet been written. Recoverable by node logic (a node may legitimately.
// probe an optional input channel).
var ErrChannelEmpty = errors.New("channel: read on empty channel")

// ErrChannelGuardViolated is returned when more than one value is written.
// to a guarded channel within a single superstep. Terminal for the task.
// that produced the offending write.
var ErrChannelGuardViolated = errors.New("channel: guard violated: multiple writes to guarded channel")

// ErrPlannerError indicates a graph topology invariant violation (e.g. a.
// dangling edge, or a barrier write naming an undeclared member). Fatal;.
// the current checkpoint is not advanced.
var ErrPlannerError = errors.New("planner: invariant violation")

// ErrSuperstepLimitExceeded is returned when max_supersteps is reached.
// without the run terminating. Fatal.
var ErrSuperstepLimitExceeded = errors.New("superstep limit exceeded")

// ErrCancelled indicates the run was cancelled externally. Fatal to the.
// current run; the last committed checkpoint remains the recovery point.
var ErrCancelled = errors.New("run cancelled")

// ErrSerializationError indicates a checkpoint failed to round-trip through.
// persistence. Surfaced to the persistence collaborator; does not crash.
// the engine.
var ErrSerializationError = errors.New("checkpoint serialization failed")

// ErrNodeRetryable marks a task failure eligible for retry per its policy.
var ErrNodeRetryable = errors.New("node: retryable failure")

// ErrNodeTerminal marks a task failure that is not retried; other nodes'.
// writes in the same superstep still merge.
var ErrNodeTerminal = errors.New("node: terminal failure")

// ErrMaxStepsExceeded is a legacy alias kept for backward compatibility.
// with the teacher's single-state engine tests; equivalent to.
// ErrSuperstepLimitExceeded for the channel-based engine.
var ErrMaxStepsExceeded = ErrSuperstepLimitExceeded

// ErrBackpressure indicates that downstream streaming consumers cannot.
// keep up; the loop blocks (§4.6) rather than dropping events, so this is.
// surfaced only when a bounded wait configured by the caller elapses.
var ErrBackpressure = errors.New("downstream backpressure exceeded threshold")

// ErrBackpressureTimeout reports that a bounded wait for slow streaming.
// consumers elapsed.
var ErrBackpressureTimeout = errors.New("backpressure wait timed out")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when the policy.
// configuration is internally inconsistent.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy configuration")

// ErrNoEligibleTasks names normal termination (plan() returned no tasks, no.
// interrupt pending). The engine does not return it: a run that ends this.
// way returns a nil error.
var ErrNoEligibleTasks = errors.New("no eligible tasks")

// EngineError carries a machine-readable Code alongside a human-readable.
// Message, with an optional Cause for error-chain inspection.
type EngineError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a stable, machine-readable error code (e.g. "NODE_TIMEOUT",.
	// "SUPERSTEP_LIMIT_EXCEEDED").
	Code string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
