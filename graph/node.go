package graph

import "context"

// Node represents a processing unit in the graph (§3.1 "Node (Process)").
//
// A node declares the channels that make it eligible to run (Triggers), the
// channels it reads as input (Reads), and the channels it writes its output
// to (Writes); its Run method is the executor function mapping an input
// Value to an output Value, possibly failing.
type Node interface {
	// Name returns the node's unique identifier within the graph.
	Name() string

	// Triggers returns the set of channel names whose version advance makes.
	// this node eligible for the next superstep (§4.3 step 1a).
	Triggers() []string

	// Reads returns the set of channel names this node consumes as input.
	// When exactly one channel is declared, the node receives that.
	// channel's value directly; when more than one, it receives a.
	// map[string]any keyed by channel name (§4.3 step 2).
	Reads() []string

	// Writes returns the set of channel names this node may write to.
	// Conditional edges can redirect writes to other nodes' channels at.
	// write time (§4.3 "Conditional Routing"); this list documents the.
	// node's own declared destinations.
	Writes() []string

	// Run executes the node's logic. input is a single Value, or a.
	// map[string]any when Reads() declares more than one channel.
	Run(ctx context.Context, input any) (any, error)

	// Policy returns the node's optional retry/timeout configuration, or.
	// nil to use the engine defaults.
	Policy() *NodePolicy
}

// NodeFunc adapts a plain function plus static declarations into a Node,.
// mirroring the teacher's function-adapter idiom for single-state nodes.
type NodeFunc struct {
	NodeName     string
	TriggerList  []string
	ReadList     []string
	WriteList    []string
	NodePolicyRef *NodePolicy
	Fn           func(ctx context.Context, input any) (any, error)
}

// Name implements Node.
func (f NodeFunc) Name() string { return f.NodeName }

// Triggers implements Node.
func (f NodeFunc) Triggers() []string { return f.TriggerList }

// Reads implements Node.
func (f NodeFunc) Reads() []string { return f.ReadList }

// Writes implements Node.
func (f NodeFunc) Writes() []string { return f.WriteList }

// Policy implements Node.
func (f NodeFunc) Policy() *NodePolicy { return f.NodePolicyRef }

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, input any) (any, error) {
	return f.Fn(ctx, input)
}

// NodeErrorKind distinguishes the three outcomes a node may signal (§6.1).
type NodeErrorKind int

const (
	// KindRetryable marks a failure the executor should retry per policy.
	KindRetryable NodeErrorKind = iota
	// KindTerminal marks a failure that is not retried.
	KindTerminal
	// KindInterrupt is a non-error signal that pauses the run.
	KindInterrupt
)

// NodeError is the structured outcome a node's Run may return instead of.
// (or wrapping) a plain error, per the §6.1 node function contract:.
// NodeError ∈ { Retryable(msg), Terminal(msg), Interrupt(payload) }.
type NodeError struct {
	// Kind selects which of the three contract variants this represents.
	Kind NodeErrorKind

	// Message is the human-readable error description (Retryable/Terminal).
	Message string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error

	// Payload carries the interrupt value when Kind == KindInterrupt.
	Payload any
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	switch e.Kind {
	case KindInterrupt:
		return "node " + e.NodeID + ": interrupt"
	default:
		if e.NodeID != "" {
			return "node " + e.NodeID + ": " + e.Message
		}
		return e.Message
	}
}

// Unwrap returns the underlying cause for error-chain inspection.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// IsInterrupt reports whether err is a NodeError signalling an interrupt.
func IsInterrupt(err error) bool {
	ne, ok := err.(*NodeError)
	return ok && ne.Kind == KindInterrupt
}

// Retryable constructs a NodeError marking a failure eligible for retry.
func Retryable(nodeID, msg string, cause error) *NodeError {
	return &NodeError{Kind: KindRetryable, NodeID: nodeID, Message: msg, Cause: cause}
}

// Terminal constructs a NodeError marking a non-retried failure.
func Terminal(nodeID, msg string, cause error) *NodeError {
	return &NodeError{Kind: KindTerminal, NodeID: nodeID, Message: msg, Cause: cause}
}

// InterruptErr constructs a NodeError signalling an interrupt with payload.
func InterruptErr(nodeID string, payload any) *NodeError {
	return &NodeError{Kind: KindInterrupt, NodeID: nodeID, Payload: payload}
}
