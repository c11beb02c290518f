package graph

import "fmt"

// Graph is the compiled, immutable topology the engine executes: channel.
// specs, nodes, and edges, indexed for fast lookup by the Planner and.
// Write Merger. Built once at graph-construction time (§3.3 "Channel.
// creation: at engine startup, from the graph definition. No runtime.
// creation.").
type Graph struct {
	channels map[string]ChannelSpec
	nodes    map[string]Node
	nodeList []string // insertion order, for deterministic iteration
	edges    []Edge

	// directEdgeTriggers maps a node name to the extra trigger channels.
	// implied by inbound Direct edges (§4.3 step 1a): the source node's.
	// declared write channels feed the target's effective trigger set.
	directEdgeTriggers map[string][]string

	// conditionalEdges maps a source node name to its outgoing Conditional.
	// edges, consulted by the Write Merger at write time (§4.3).
	conditionalEdges map[string][]Edge
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		channels:           make(map[string]ChannelSpec),
		nodes:              make(map[string]Node),
		directEdgeTriggers: make(map[string][]string),
		conditionalEdges:   make(map[string][]Edge),
	}
}

// AddChannel declares a channel. Must be called before Build.
func (g *Graph) AddChannel(spec ChannelSpec) *Graph {
	g.channels[spec.Name] = spec
	return g
}

// AddNode registers a node. Must be called before Build.
func (g *Graph) AddNode(n Node) *Graph {
	if _, exists := g.nodes[n.Name()]; !exists {
		g.nodeList = append(g.nodeList, n.Name())
	}
	g.nodes[n.Name()] = n
	return g
}

// AddEdge registers an edge. Must be called before Build.
func (g *Graph) AddEdge(e Edge) *Graph {
	g.edges = append(g.edges, e)
	return g
}

// Build validates topology and indexes edges for planning/merging. Returns.
// ErrPlannerError wrapping a descriptive message on a dangling edge.
func (g *Graph) Build() error {
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return fmt.Errorf("edge from unknown node %q: %w", e.From, ErrPlannerError)
		}
		switch e.Kind {
		case EdgeDirect:
			target, ok := g.nodes[e.To]
			if !ok {
				return fmt.Errorf("edge to unknown node %q: %w", e.To, ErrPlannerError)
			}
			src := g.nodes[e.From]
			g.directEdgeTriggers[target.Name()] = append(g.directEdgeTriggers[target.Name()], src.Writes()...)
		case EdgeConditional:
			if e.Router == nil {
				return fmt.Errorf("conditional edge from %q has no router: %w", e.From, ErrPlannerError)
			}
			g.conditionalEdges[e.From] = append(g.conditionalEdges[e.From], e)
		}
	}
	return nil
}

// Node looks up a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all node names in registration order (deterministic).
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodeList))
	copy(out, g.nodeList)
	return out
}

// ChannelSpec looks up a declared channel spec by name.
func (g *Graph) ChannelSpec(name string) (ChannelSpec, bool) {
	spec, ok := g.channels[name]
	return spec, ok
}

// effectiveTriggers returns a node's static triggers plus any channels.
// implied by inbound Direct edges (§4.3 step 1a).
func (g *Graph) effectiveTriggers(n Node) []string {
	triggers := append([]string(nil), n.Triggers()...)
	triggers = append(triggers, g.directEdgeTriggers[n.Name()]...)
	return dedupeStrings(triggers)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
