package graph

import (
	"sort"
	"time"
)

// Write Merger (C5): applies pending writes from a superstep to channels.
// atomically, bumps versions, updates versions_seen, ticks Ephemeral (§4.5).

// TaskOutcome pairs a Task with its executor result: either a produced.
// value (Err == nil) or a failure. A task that ends in error contributes no.
// writes (§3.2 invariant 4).
type TaskOutcome struct {
	Task  Task
	Value any
	Err   error
}

// Merger applies a superstep's task outcomes to the channel kernel.
type Merger struct {
	graph *Graph
}

// NewMerger constructs a Merger bound to a compiled Graph.
func NewMerger(g *Graph) *Merger {
	return &Merger{graph: g}
}

// Merge implements the §4.5 algorithm. channels is mutated in place (the.
// Channel Kernel is owned by the Loop; only the Merger mutates it, only at.
// the barrier — §3.3, §5). prior is not mutated; the returned Checkpoint is.
// a new immutable snapshot.
func (m *Merger) Merge(channels map[string]*Channel, prior *Checkpoint, runID string, superstep int, outcomes []TaskOutcome) (*Checkpoint, error) {
	buckets := make(map[string][]PendingWrite)

	// Step 1: collect successful outputs into per-target-channel buckets,.
	// applying conditional routing to determine destinations.
	for i, oc := range outcomes {
		if oc.Err != nil {
			continue
		}
		targets := m.resolveTargets(oc.Task, oc.Value)
		for _, target := range targets {
			buckets[target] = append(buckets[target], PendingWrite{
				SourceNodeName:  oc.Task.Node.Name(),
				SourcePathIndex: i,
				TargetChannel:   target,
				Value:           oc.Value,
			})
		}
	}

	next := cloneCheckpoint(prior)
	next.ParentID = prior.ID
	next.ID = NewCheckpointID()

	// Step 2-3: sort each bucket deterministically and apply write_batch.
	var allWrites []PendingWrite
	for target, writes := range buckets {
		sort.Slice(writes, func(i, j int) bool { return lessPendingWrite(writes[i], writes[j]) })
		allWrites = append(allWrites, writes...)

		ch, ok := channels[target]
		if !ok {
			continue
		}
		values := make([]any, len(writes))
		for i, w := range writes {
			values[i] = w.Value
		}
		changed, err := ch.WriteBatch(values)
		if err != nil {
			return nil, err
		}
		if changed {
			next.ChannelVersions[target] = next.ChannelVersions[target] + 1
		}
		if ch.Variant() != Untracked {
			next.ChannelValues[target] = ch.Snapshot()
		} else {
			delete(next.ChannelValues, target)
			delete(next.ChannelVersions, target)
		}
	}

	// Step 4: update versions_seen for every task that ran (successful or.
	// not — a node that attempted and failed has still "seen" the versions.
	// that made it eligible; it will not spuriously re-run next superstep.
	// merely because it failed).
	for _, oc := range outcomes {
		node := oc.Task.Node.Name()
		if next.VersionsSeen[node] == nil {
			next.VersionsSeen[node] = make(map[string]uint64, len(oc.Task.TriggerVersions))
		}
		for ch, v := range oc.Task.TriggerVersions {
			next.VersionsSeen[node][ch] = v
		}
	}

	// Step 5: tick Ephemeral channels.
	for name, ch := range channels {
		if ch.Variant() == Ephemeral {
			ch.tickEphemeral()
			next.ChannelValues[name] = ch.Snapshot()
		}
	}

	next.Timestamp = time.Now().UTC()
	next.Metadata = map[string]any{"source": SourceStep}

	key, err := computeIdempotencyKey(runID, superstep, allWrites)
	if err != nil {
		return nil, err
	}
	next.IdempotencyKey = key

	return next, nil
}

// resolveTargets determines which channels receive a task's output: its.
// declared write channels, or — when the node has outgoing Conditional.
// edges — the edges' router output instead (§4.3 "Conditional Routing":.
// "redirect N's writes ... rather than only N's own declared write.
// channel"; a conditional edge supersedes the node's static writes the same.
// way `trpc-group-trpc-agent-go/graph/executor.go`'s `selectNextNode` checks.
// conditional edges first and uses them instead of regular ones, §6.3).
//
// A Conditional edge's router returns target *node* names; each is mapped.
// to that node's primary trigger channel (its first declared trigger), the.
// conventional "feed this node's input" destination — falling back to a.
// channel named identically to the node when it declares no triggers.
func (m *Merger) resolveTargets(t Task, output any) []string {
	condEdges := m.graph.conditionalEdges[t.Node.Name()]
	if len(condEdges) == 0 {
		return t.WriteChannels
	}

	var targets []string
	for _, e := range condEdges {
		for _, nodeName := range e.Router(output) {
			targets = append(targets, m.targetChannelForNode(nodeName))
		}
	}
	return dedupeStrings(targets)
}

func (m *Merger) targetChannelForNode(nodeName string) string {
	if target, ok := m.graph.nodes[nodeName]; ok {
		if triggers := target.Triggers(); len(triggers) > 0 {
			return triggers[0]
		}
	}
	return nodeName
}
