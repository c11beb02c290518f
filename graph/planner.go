package graph

import "fmt"

// Task Planner (C3): pure function computing eligible tasks for the next.
// superstep from channel versions and edge topology (§4.3).

// PendingWrite is a buffered write destined for a target channel, produced.
// by a task during a superstep and applied atomically at superstep end (§3.1).
type PendingWrite struct {
	// SourceNodeName identifies the node that produced this write.
	SourceNodeName string

	// SourcePathIndex is the producing task's position in the superstep's.
	// outcome list (dispatch order); it is the second sort key after.
	// SourceNodeName; see §3.2 invariant 5 and §9.
	SourcePathIndex int

	// TargetChannel is the destination channel name.
	TargetChannel string

	// Value is the write payload.
	Value any
}

// Task is a scheduling record binding a node, its computed input, the.
// channels that triggered it, and its target write-channel names (§3.1).
type Task struct {
	// Node is the node to execute.
	Node Node

	// Input is the value (or map[string]any, for multi-channel reads) to.
	// pass to Node.Run.
	Input any

	// TriggeredBy is the set of channel names whose version advance made.
	// this node eligible this superstep.
	TriggeredBy []string

	// TriggerVersions records, for each triggering channel, the version.
	// that made the node eligible — the value versions_seen must be.
	// updated to at merge time (§4.5 step 4).
	TriggerVersions map[string]uint64

	// WriteChannels are the node's statically declared write destinations;.
	// conditional routing may redirect or extend these at merge time.
	WriteChannels []string

	// ResumeInjected is true when Input was supplied via the resume.
	// side-channel rather than computed from Reads() (§9 interrupt resume).
	ResumeInjected bool

	// Path identifies this task's position in the execution hierarchy.
	// Flat graphs produce a single-segment path naming the node; nested.
	// fan-out (not currently supported) would extend it with Int/Tuple.
	// segments per the original implementation's PathSegment scheme.
	Path []PathSegment

	// CacheKey, when non-nil, is the key under which this task's result.
	// may be looked up or stored in the configured TaskCache (set only.
	// when the node's policy enables caching and its input is hashable).
	CacheKey *CacheKey
}

// Planner computes the set of runnable tasks for a checkpoint.
type Planner struct {
	graph *Graph
}

// NewPlanner constructs a Planner bound to a compiled Graph.
func NewPlanner(g *Graph) *Planner {
	return &Planner{graph: g}
}

// Plan returns the tasks eligible to run given the checkpoint's current.
// channel_versions and versions_seen (§4.3 algorithm). Pure; no side effects.
//
// resumeValues, when non-nil, supplies side-channel input for a node being.
// re-admitted after an interrupt (§9): if a node name is present, its input.
// is taken from resumeValues instead of its declared read channels.
func (p *Planner) Plan(channels map[string]*Channel, cp *Checkpoint, resumeValues map[string]any) ([]Task, error) {
	var tasks []Task
	for _, name := range p.graph.Nodes() {
		node := p.graph.nodes[name]
		triggers := p.graph.effectiveTriggers(node)

		triggeredBy := make([]string, 0, len(triggers))
		triggerVersions := make(map[string]uint64, len(triggers))
		for _, ch := range triggers {
			current := cp.ChannelVersions[ch]
			seen := cp.VersionsSeen[node.Name()][ch]
			if current > seen {
				triggeredBy = append(triggeredBy, ch)
				triggerVersions[ch] = current
			}
		}
		if len(triggeredBy) == 0 {
			continue
		}

		input, resumeInjected, err := p.computeInput(channels, node, resumeValues)
		if err != nil {
			return nil, err
		}

		task := Task{
			Node:            node,
			Input:           input,
			TriggeredBy:     triggeredBy,
			TriggerVersions: triggerVersions,
			WriteChannels:   append([]string(nil), node.Writes()...),
			ResumeInjected:  resumeInjected,
			Path:            []PathSegment{StringSegment(node.Name())},
		}
		if policy := node.Policy(); policy != nil && policy.Cache != nil && policy.Cache.Enabled {
			if key, ok := computeCacheKey(node.Name(), input); ok {
				task.CacheKey = &key
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (p *Planner) computeInput(channels map[string]*Channel, node Node, resumeValues map[string]any) (any, bool, error) {
	if resumeValues != nil {
		if v, ok := resumeValues[node.Name()]; ok {
			return v, true, nil
		}
	}

	reads := node.Reads()
	if len(reads) == 0 {
		return nil, false, nil
	}
	if len(reads) == 1 {
		ch, ok := channels[reads[0]]
		if !ok {
			return nil, false, fmt.Errorf("node %q reads undeclared channel %q: %w", node.Name(), reads[0], ErrPlannerError)
		}
		v, err := ch.Read()
		if err != nil {
			// ChannelEmpty is recoverable: a node may legitimately probe an.
			// optional channel; pass nil rather than failing planning.
			return nil, false, nil
		}
		return v, false, nil
	}

	out := make(map[string]any, len(reads))
	for _, r := range reads {
		ch, ok := channels[r]
		if !ok {
			continue
		}
		if v, err := ch.Read(); err == nil {
			out[r] = v
		}
	}
	return out, false, nil
}

// PlanNext computes the node names that would run in the next superstep,.
// for StateSnapshot derivation (§4.2 "next" field). Does not consult resume.
// values since a snapshot describes steady-state eligibility.
func (p *Planner) PlanNext(channels map[string]*Channel, cp *Checkpoint) []string {
	var next []string
	for _, name := range p.graph.Nodes() {
		node := p.graph.nodes[name]
		for _, ch := range p.graph.effectiveTriggers(node) {
			if cp.ChannelVersions[ch] > cp.VersionsSeen[node.Name()][ch] {
				next = append(next, name)
				break
			}
		}
	}
	return next
}
