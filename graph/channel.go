// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import "fmt"

// ChannelVariant selects the merge discipline for a Channel's write_batch operation.
//
// The set of variants is closed: dispatch is a switch over the tag, not an
// open interface, matching how the graph topology is fixed at build time.
type ChannelVariant int

const (
	// LastWrite retains only the most recent value; if multiple writes land.
	// in one superstep, the last one (by deterministic sort order) wins.
	LastWrite ChannelVariant = iota

	// Topic accumulates every write into an ordered sequence. An empty.
	// write_batch clears the accumulator.
	Topic

	// Reduce folds writes into the current value using a user-supplied.
	// associative binary reducer.
	Reduce

	// Ephemeral behaves like LastWrite but is automatically cleared on the.
	// superstep following the one that populated it: it survives exactly.
	// one observation.
	Ephemeral

	// Barrier becomes ready only once every name in its declared name-set.
	// has been written at least once; consume() resets it.
	Barrier

	// Untracked holds a value like LastWrite but is excluded from every.
	// persisted checkpoint.
	Untracked
)

func (v ChannelVariant) String() string {
	switch v {
	case LastWrite:
		return "last_write"
	case Topic:
		return "topic"
	case Reduce:
		return "reduce"
	case Ephemeral:
		return "ephemeral"
	case Barrier:
		return "barrier"
	case Untracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// ReducerFunc merges a channel's current value with one newly written value.
// Must be pure, deterministic, and associative when composed across supersteps;
// the engine does not enforce associativity but behavior is undefined otherwise.
type ReducerFunc func(current, next any) any

// ChannelSpec declares a channel at graph-build time. Channels are created.
// once, from the graph definition, and never at runtime.
type ChannelSpec struct {
	// Name uniquely identifies the channel within the graph.
	Name string

	// Variant selects the merge discipline.
	Variant ChannelVariant

	// Reducer is required when Variant == Reduce; it is stored by reference.
	// and invoked as a pure function with no associated state.
	Reducer ReducerFunc

	// ReduceIdentity is the fold seed used the first time a Reduce channel.
	// is written (i.e. when it was previously empty). If nil, the first.
	// write in the batch seeds the accumulator instead.
	ReduceIdentity any

	// BarrierNames is the declared name-set for a Barrier channel: each.
	// write_batch element must be a string present in this set.
	BarrierNames []string

	// Guard, when true, rejects any write_batch whose sequence length > 1.
	// Only meaningful for Ephemeral and Untracked channels.
	Guard bool
}

// Channel is a named, typed state cell with a merge discipline (§3.1/§4.1).
// It never panics; every operation reports failure through a typed error.
type Channel struct {
	spec    ChannelSpec
	version uint64
	empty   bool
	value   any

	// accumulator backs Topic (an []any) and Barrier (a set of seen names).
	accumulator []any
	seen        map[string]bool

	// fresh tracks Ephemeral "survives one observation" semantics: true.
	// immediately after being populated, cleared by the *next* tick, and.
	// the channel itself is emptied by the tick after that.
	fresh bool
}

// NewChannel constructs a Channel from its spec in the empty state.
func NewChannel(spec ChannelSpec) *Channel {
	c := &Channel{spec: spec, empty: true}
	if spec.Variant == Barrier {
		c.seen = make(map[string]bool, len(spec.BarrierNames))
	}
	return c
}

// Name returns the channel's declared name.
func (c *Channel) Name() string { return c.spec.Name }

// Variant returns the channel's merge discipline.
func (c *Channel) Variant() ChannelVariant { return c.spec.Variant }

// Version returns the channel's current monotonic version.
func (c *Channel) Version() uint64 { return c.version }

// IsReady reports whether Read would currently succeed.
func (c *Channel) IsReady() bool {
	if c.spec.Variant == Barrier {
		return len(c.seen) >= len(c.spec.BarrierNames) && len(c.spec.BarrierNames) > 0
	}
	return !c.empty
}

// Read returns the channel's current value, or ErrChannelEmpty if nothing.
// has been written yet.
func (c *Channel) Read() (any, error) {
	switch c.spec.Variant {
	case Topic:
		if c.empty {
			return nil, fmt.Errorf("channel %q: %w", c.spec.Name, ErrChannelEmpty)
		}
		out := make([]any, len(c.accumulator))
		copy(out, c.accumulator)
		return out, nil
	case Barrier:
		if !c.IsReady() {
			return nil, fmt.Errorf("channel %q: %w", c.spec.Name, ErrChannelEmpty)
		}
		return c.seenNames(), nil
	default:
		if c.empty {
			return nil, fmt.Errorf("channel %q: %w", c.spec.Name, ErrChannelEmpty)
		}
		return c.value, nil
	}
}

func (c *Channel) seenNames() []string {
	out := make([]string, 0, len(c.seen))
	for _, n := range c.spec.BarrierNames {
		if c.seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// Consume resets a Barrier channel and reports whether it was ready before.
// the reset. It is a no-op returning false on any other variant.
func (c *Channel) Consume() bool {
	if c.spec.Variant != Barrier {
		return false
	}
	wasReady := c.IsReady()
	c.seen = make(map[string]bool, len(c.spec.BarrierNames))
	return wasReady
}

// WriteBatch applies an ordered sequence of writes per the channel's variant.
// It returns whether the current value changed (triggering a version bump).
func (c *Channel) WriteBatch(values []any) (changed bool, err error) {
	if c.spec.Guard && len(values) > 1 {
		return false, fmt.Errorf("channel %q: %w", c.spec.Name, ErrChannelGuardViolated)
	}

	switch c.spec.Variant {
	case LastWrite, Untracked:
		if len(values) == 0 {
			wasEmpty := c.empty
			c.empty = true
			c.value = nil
			return !wasEmpty, nil
		}
		c.value = values[len(values)-1]
		c.empty = false
		return true, nil

	case Ephemeral:
		if len(values) == 0 {
			c.empty = true
			c.value = nil
			return false, nil
		}
		c.value = values[len(values)-1]
		c.empty = false
		c.fresh = true
		return true, nil

	case Topic:
		if len(values) == 0 {
			hadAny := len(c.accumulator) > 0
			c.accumulator = nil
			c.empty = true
			return hadAny, nil
		}
		c.accumulator = append(c.accumulator, values...)
		c.empty = false
		return true, nil

	case Reduce:
		if len(values) == 0 {
			return false, nil
		}
		acc := c.value
		if c.empty {
			if c.spec.ReduceIdentity != nil {
				acc = c.spec.ReduceIdentity
			} else {
				acc = values[0]
				values = values[1:]
			}
		}
		for _, v := range values {
			acc = c.spec.Reducer(acc, v)
		}
		c.value = acc
		c.empty = false
		return true, nil

	case Barrier:
		if len(values) == 0 {
			return false, nil
		}
		changed := false
		for _, v := range values {
			name, ok := v.(string)
			if !ok {
				return false, fmt.Errorf("channel %q: barrier write must be a string: %w", c.spec.Name, ErrPlannerError)
			}
			if !c.isDeclaredName(name) {
				return false, fmt.Errorf("channel %q: %q is not in the declared barrier name-set: %w", c.spec.Name, name, ErrPlannerError)
			}
			if !c.seen[name] {
				c.seen[name] = true
				changed = true
			}
		}
		return changed, nil

	default:
		return false, fmt.Errorf("channel %q: unknown variant %d", c.spec.Name, c.spec.Variant)
	}
}

func (c *Channel) isDeclaredName(name string) bool {
	for _, n := range c.spec.BarrierNames {
		if n == name {
			return true
		}
	}
	return false
}

// Snapshot serializes the channel's visible state for checkpointing. It.
// returns nil for Untracked channels (excluded from persisted checkpoints.
// per invariant 6) and for empty channels of any other variant.
func (c *Channel) Snapshot() any {
	switch c.spec.Variant {
	case Untracked:
		return nil
	case Topic:
		if c.empty {
			return nil
		}
		out := make([]any, len(c.accumulator))
		copy(out, c.accumulator)
		return out
	case Barrier:
		if len(c.seen) == 0 {
			return nil
		}
		return c.seenNames()
	default:
		if c.empty {
			return nil
		}
		return c.value
	}
}

// Restore rehydrates a channel's state from a previously captured snapshot.
// Untracked channels ignore Restore (they are never persisted).
func (c *Channel) Restore(snapshot any) {
	switch c.spec.Variant {
	case Untracked:
		return
	case Topic:
		if snapshot == nil {
			c.accumulator = nil
			c.empty = true
			return
		}
		if arr, ok := snapshot.([]any); ok {
			c.accumulator = append([]any(nil), arr...)
			c.empty = false
		}
	case Barrier:
		c.seen = make(map[string]bool, len(c.spec.BarrierNames))
		if names, ok := snapshot.([]string); ok {
			for _, n := range names {
				c.seen[n] = true
			}
		} else if raw, ok := snapshot.([]any); ok {
			for _, n := range raw {
				if s, ok := n.(string); ok {
					c.seen[s] = true
				}
			}
		}
	default:
		if snapshot == nil {
			c.value = nil
			c.empty = true
			return
		}
		c.value = snapshot
		c.empty = false
	}
}

// tickEphemeral implements invariant 7: a value written in superstep k is.
// visible during superstep k+1 and cleared at the *start* of superstep k+2.
// Called once per superstep by the Write Merger, after writes are applied.
func (c *Channel) tickEphemeral() {
	if c.spec.Variant != Ephemeral {
		return
	}
	if c.fresh {
		// Just became fresh this merge; survive one more superstep.
		c.fresh = false
		return
	}
	if !c.empty {
		c.empty = true
		c.value = nil
	}
}
