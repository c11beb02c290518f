// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

// EdgeKind distinguishes Direct from Conditional edges (§3.1).
type EdgeKind int

const (
	// EdgeDirect feeds the source node's write channel into the target.
	// node's trigger set; resolved entirely at graph-build time.
	EdgeDirect EdgeKind = iota
	// EdgeConditional resolves its target set at write time via Router,.
	// after the source node executes (§4.3 "Conditional Routing").
	EdgeConditional
)

// RouterFunc is a pure function selecting target node names from a node's.
// output value (§6.3). Invoked during merge, after the source node runs.
type RouterFunc func(output any) []string

// Edge connects nodes in the graph topology (§3.1).
//
// A Direct edge names exactly one target via To. A Conditional edge names.
// zero targets directly; instead, Router is invoked on the source node's.
// output once it completes, and its returned node names become the write.
// destinations for that execution (redirecting the source's writes instead.
// of, or in addition to, its own declared write channels).
type Edge struct {
	// From is the source node's name.
	From string

	// Kind selects Direct or Conditional resolution.
	Kind EdgeKind

	// To is the destination node's name; only meaningful when Kind == EdgeDirect.
	To string

	// Router selects target node names at write time; only meaningful when.
	// Kind == EdgeConditional. Pure; no side effects.
	Router RouterFunc
}

// DirectEdge constructs a Direct edge from A's write channel to B's trigger set.
func DirectEdge(from, to string) Edge {
	return Edge{From: from, Kind: EdgeDirect, To: to}
}

// ConditionalEdge constructs a Conditional edge whose targets are resolved.
// by router once the source node executes.
func ConditionalEdge(from string, router RouterFunc) Edge {
	return Edge{From: from, Kind: EdgeConditional, Router: router}
}
