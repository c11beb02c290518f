// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/m-corp/pregelgraph/graph/emit"
	"github.com/m-corp/pregelgraph/graph/store"
)

// Superstep Loop (C6): drives a compiled Graph through repeated.
// plan→execute→merge→checkpoint cycles until termination, interruption, or.
// failure (§4.6). The Loop is the sole owner of the mutable Channel Kernel.
// during a run; every other component touches it only through the Loop.

// Interrupt is returned by Run/Resume when the loop pauses at an.
// interrupt_before/interrupt_after boundary, or a node signals.
// KindInterrupt (§4.6, §9). CheckpointID addresses the pause point for a.
// later Resume call; ID individually addresses this particular interrupt.
// occurrence, so concurrent interrupts from different nodes within the.
// same superstep remain distinguishable on resume.
type Interrupt struct {
	ID           string
	RunID        string
	CheckpointID string
	NodeName     string
	Payload      any
}

// Error implements the error interface.
func (i *Interrupt) Error() string {
	return fmt.Sprintf("run %s interrupted at node %q", i.RunID, i.NodeName)
}

// Engine drives one compiled Graph through its superstep loop. An Engine is.
// safe for concurrent Run/Resume calls against distinct runIDs; a single.
// runID must not be driven concurrently, since the loop owns that run's.
// Channel Kernel exclusively for the call's duration (§3.3, §5).
type Engine struct {
	graph    *Graph
	planner  *Planner
	merger   *Merger
	executor *Executor
	saver    store.CheckpointSaver
	emitter  emit.Emitter
	opts     Options

	interruptBefore map[string]bool
	interruptAfter  map[string]bool
}

// New constructs an Engine for g. saver may be nil to disable persistence.
// (interrupts can still be returned to the caller within a single Run call,.
// but Resume across process restarts requires a saver). emitter may be nil,.
// in which case events are discarded (emit.NullEmitter).
func New(g *Graph, saver store.CheckpointSaver, emitter emit.Emitter, opts ...Option) (*Engine, error) {
	cfg := &engineConfig{opts: Options{
		MaxSupersteps:      100,
		MaxConcurrentTasks: 8,
		DefaultNodeTimeout:  30 * time.Second,
		StreamModes:         defaultStreamModes(),
		SubscriberCapacity:  100,
		StrictReplay:        true,
	}}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("graph.New: %w", err)
		}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	executor, err := NewExecutor(cfg.opts.MaxConcurrentTasks, ExecutorConfig{
		DefaultTimeout: cfg.opts.DefaultNodeTimeout,
		DefaultPolicy:  cfg.opts.DefaultRetryPolicy,
		RNGSeed:        cfg.opts.RNGSeed,
		Cache:          cfg.opts.TaskCache,
	})
	if err != nil {
		return nil, fmt.Errorf("graph.New: %w", err)
	}

	return &Engine{
		graph:           g,
		planner:         NewPlanner(g),
		merger:          NewMerger(g),
		executor:        executor,
		saver:           saver,
		emitter:         emitter,
		opts:            cfg.opts,
		interruptBefore: toNameSet(cfg.opts.InterruptBefore),
		interruptAfter:  toNameSet(cfg.opts.InterruptAfter),
	}, nil
}

func toNameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// Close releases the Task Executor's worker pool. Call once the Engine is.
// no longer needed.
func (e *Engine) Close() {
	e.executor.Release()
}

// Run drives a fresh execution of the graph from initial_input to.
// termination, interruption, or failure (§4.6 Init state).
func (e *Engine) Run(ctx context.Context, runID string, input any) (any, error) {
	cp := &Checkpoint{
		ID:              NewCheckpointID(),
		ChannelValues:   map[string]any{StartChannel: input},
		ChannelVersions: map[string]uint64{StartChannel: 1},
		VersionsSeen:    map[string]map[string]uint64{},
		Timestamp:       time.Now().UTC(),
		Metadata:        map[string]any{"source": SourceInput},
	}

	channels := e.newChannels()
	restoreChannels(channels, cp)

	e.emitDebug(runID, 0, "", cp.ID, "state=init")

	if e.saver != nil {
		if _, err := e.saver.Put(ctx, store.RunConfig{RunID: runID}, cp, store.CheckpointMetadata{Source: SourceInput, Step: 0}); err != nil {
			return nil, fmt.Errorf("run %s: commit initial checkpoint: %w", runID, err)
		}
	}

	return e.loop(ctx, runID, channels, cp, 0, nil)
}

// Resume re-enters the loop at Plan, injecting resumeValue into the.
// interrupted node's input (§4.6 Interrupted state, §9). Requires a.
// CheckpointSaver holding the run's most recent (interrupted) checkpoint.
func (e *Engine) Resume(ctx context.Context, runID string, resumeValue any) (any, error) {
	if e.saver == nil {
		return nil, fmt.Errorf("run %s: resume requires a checkpoint saver: %w", runID, ErrPlannerError)
	}
	tuple, err := e.saver.GetTuple(ctx, store.RunConfig{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("run %s: resume: load checkpoint: %w", runID, err)
	}
	cp := tuple.Checkpoint
	nodeName, _ := cp.Metadata["interrupted_node"].(string)
	if nodeName == "" {
		return nil, fmt.Errorf("run %s: resume: checkpoint %s was not interrupted: %w", runID, cp.ID, ErrPlannerError)
	}

	channels := e.newChannels()
	restoreChannels(channels, cp)

	e.emitDebug(runID, tuple.Metadata.Step, nodeName, cp.ID, "state=resume")

	return e.loop(ctx, runID, channels, cp, tuple.Metadata.Step, map[string]any{nodeName: resumeValue})
}

// loop implements the Plan→Execute→Merge→Checkpoint cycle (§4.6). cp is the.
// last committed checkpoint; superstep is the number of the superstep that.
// produced it (0 for the initial checkpoint).
func (e *Engine) loop(ctx context.Context, runID string, channels map[string]*Channel, cp *Checkpoint, superstep int, resumeValues map[string]any) (any, error) {
	maxSupersteps := e.opts.MaxSupersteps
	if maxSupersteps <= 0 {
		maxSupersteps = 100
	}
	runStart := time.Now()

	// pendingTerminalErr holds the most recent superstep's KindTerminal.
	// failure, if any, so the very next planning step can surface it via.
	// ErrNoProgress when it finds no further eligible tasks (§7: "the loop.
	// checkpoints, then surfaces the error on the subsequent planning step.
	// if no progress is possible"). It is cleared as soon as a planning step.
	// finds new tasks, since that proves progress remained possible.
	var pendingTerminalErr *NodeError

	for {
		if e.opts.RunWallClockBudget > 0 && time.Since(runStart) > e.opts.RunWallClockBudget {
			return nil, fmt.Errorf("run %s: wall-clock budget exceeded: %w", runID, ErrCancelled)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, ErrCancelled)
		}

		// Plan.
		tasks, err := e.planner.Plan(channels, cp, resumeValues)
		if err != nil {
			e.emitDebug(runID, superstep, "", cp.ID, "state=failed err="+err.Error())
			return nil, fmt.Errorf("run %s: plan: %w", runID, err)
		}
		resumeValues = nil

		if len(tasks) == 0 {
			if pendingTerminalErr != nil {
				e.emitDebug(runID, superstep, pendingTerminalErr.NodeID, cp.ID, "state=failed err="+pendingTerminalErr.Error())
				return nil, fmt.Errorf("run %s: %w: %w", runID, ErrNoProgress, pendingTerminalErr)
			}
			e.emitDebug(runID, superstep, "", cp.ID, "state=terminated")
			return extractFinalValue(channels), nil
		}
		pendingTerminalErr = nil

		if blocked := e.firstInterruptBefore(tasks); blocked != "" {
			icp, err := e.commitInterrupt(ctx, runID, cp, superstep, blocked, nil)
			if err != nil {
				return nil, err
			}
			e.emitDebug(runID, superstep, blocked, icp.ID, "state=interrupted phase=before")
			return nil, &Interrupt{ID: NewCheckpointID(), RunID: runID, CheckpointID: icp.ID, NodeName: blocked}
		}

		superstep++
		if superstep > maxSupersteps {
			return nil, fmt.Errorf("run %s: superstep %d: %w", runID, superstep, ErrSuperstepLimitExceeded)
		}

		// Execute.
		if e.opts.Metrics != nil {
			e.opts.Metrics.UpdateInflightNodes(len(tasks))
		}
		e.emitTasks(runID, superstep, cp.ID, tasks)

		stepStart := time.Now()
		outcomes, err := e.executor.ExecuteSuperstep(e.withShared(ctx), runID, superstep, tasks)
		if err != nil {
			e.emitDebug(runID, superstep, "", cp.ID, "state=failed err="+err.Error())
			return nil, fmt.Errorf("run %s: superstep %d: %w", runID, superstep, err)
		}

		if nodeName, payload, ok := firstInterruptOutcome(outcomes); ok {
			icp, err := e.commitInterrupt(ctx, runID, cp, superstep, nodeName, payload)
			if err != nil {
				return nil, err
			}
			e.emitDebug(runID, superstep, nodeName, icp.ID, "state=interrupted phase=execute")
			return nil, &Interrupt{ID: NewCheckpointID(), RunID: runID, CheckpointID: icp.ID, NodeName: nodeName, Payload: payload}
		}

		if e.opts.Metrics != nil {
			status := "success"
			for _, oc := range outcomes {
				if oc.Err != nil {
					status = "error"
					e.opts.Metrics.IncrementRetries(runID, oc.Task.Node.Name(), "attempt_exhausted")
				}
			}
			e.opts.Metrics.RecordStepLatency(runID, "*", time.Since(stepStart), status)
		}

		pendingTerminalErr = lastTerminalOutcome(outcomes)

		// Merge.
		next, err := e.merger.Merge(channels, cp, runID, superstep, outcomes)
		if err != nil {
			e.emitDebug(runID, superstep, "", cp.ID, "state=failed err="+err.Error())
			return nil, fmt.Errorf("run %s: merge superstep %d: %w", runID, superstep, err)
		}
		cp = next

		// Checkpoint.
		if e.saver != nil {
			if _, err := e.saver.Put(ctx, store.RunConfig{RunID: runID}, cp, store.CheckpointMetadata{Source: SourceStep, Step: superstep, ParentID: cp.ParentID}); err != nil {
				return nil, fmt.Errorf("run %s: commit checkpoint at superstep %d: %w", runID, superstep, err)
			}
		}

		e.emitValues(runID, superstep, cp, channels)
		e.emitUpdates(runID, superstep, cp, outcomes)

		if afterNode := e.firstInterruptAfter(outcomes); afterNode != "" {
			e.emitDebug(runID, superstep, afterNode, cp.ID, "state=interrupted phase=after")
			return nil, &Interrupt{ID: NewCheckpointID(), RunID: runID, CheckpointID: cp.ID, NodeName: afterNode}
		}
	}
}

// withShared attaches the Engine's optional Metrics/CostTracker collaborators.
// to ctx so node implementations can retrieve them (§6.1).
func (e *Engine) withShared(ctx context.Context) context.Context {
	if e.opts.Metrics != nil {
		ctx = context.WithValue(ctx, MetricsKey, e.opts.Metrics)
	}
	if e.opts.CostTracker != nil {
		ctx = context.WithValue(ctx, CostTrackerKey, e.opts.CostTracker)
	}
	return ctx
}

// newChannels instantiates a fresh Channel Kernel from the graph's declared.
// ChannelSpecs, synthesizing the four special channels (§3.1, §4.2) with.
// sensible default variants when the graph did not declare them explicitly.
func (e *Engine) newChannels() map[string]*Channel {
	channels := make(map[string]*Channel, len(e.graph.channels)+4)
	for name, spec := range e.graph.channels {
		channels[name] = NewChannel(spec)
	}
	defaults := []struct {
		name    string
		variant ChannelVariant
	}{
		{StartChannel, LastWrite},
		{EndChannel, LastWrite},
		{InterruptChannel, Untracked},
		{ResumeChannel, Untracked},
	}
	for _, d := range defaults {
		if _, ok := channels[d.name]; !ok {
			channels[d.name] = NewChannel(ChannelSpec{Name: d.name, Variant: d.variant})
		}
	}
	return channels
}

// restoreChannels rehydrates a fresh Channel Kernel from a checkpoint's.
// persisted channel_values, for both initial runs and resumption.
func restoreChannels(channels map[string]*Channel, cp *Checkpoint) {
	for name, ch := range channels {
		if v, ok := cp.ChannelValues[name]; ok {
			ch.Restore(v)
		}
	}
}

// extractFinalValue reads the run's terminal value from EndChannel, falling.
// back to StartChannel when the graph never wrote an explicit end marker.
// (§4.6 Terminated state).
func extractFinalValue(channels map[string]*Channel) any {
	if ch, ok := channels[EndChannel]; ok {
		if v, err := ch.Read(); err == nil {
			return v
		}
	}
	if ch, ok := channels[StartChannel]; ok {
		if v, err := ch.Read(); err == nil {
			return v
		}
	}
	return nil
}

// firstInterruptBefore returns the first eligible task's node name that.
// matches interrupt_before, in planner order, or "" if none match.
func (e *Engine) firstInterruptBefore(tasks []Task) string {
	if len(e.interruptBefore) == 0 {
		return ""
	}
	for _, t := range tasks {
		if e.interruptBefore[t.Node.Name()] {
			return t.Node.Name()
		}
	}
	return ""
}

// firstInterruptAfter returns the first successfully-executed task's node.
// name that matches interrupt_after, or "" if none match.
func (e *Engine) firstInterruptAfter(outcomes []TaskOutcome) string {
	if len(e.interruptAfter) == 0 {
		return ""
	}
	for _, oc := range outcomes {
		if oc.Err == nil && e.interruptAfter[oc.Task.Node.Name()] {
			return oc.Task.Node.Name()
		}
	}
	return ""
}

// firstInterruptOutcome scans a superstep's outcomes for a node that.
// signalled KindInterrupt, returning its name and payload.
func firstInterruptOutcome(outcomes []TaskOutcome) (nodeName string, payload any, ok bool) {
	for _, oc := range outcomes {
		if oc.Err == nil {
			continue
		}
		if ne, isNodeErr := oc.Err.(*NodeError); isNodeErr && ne.Kind == KindInterrupt {
			return oc.Task.Node.Name(), ne.Payload, true
		}
	}
	return "", nil, false
}

// lastTerminalOutcome scans a superstep's outcomes for a KindTerminal node.
// failure, returning the last one found (in outcome order) or nil if none.
// A terminal failure does not stop the superstep — other nodes' writes.
// still merge — so this is recorded for the next planning step to check,.
// not acted on immediately.
func lastTerminalOutcome(outcomes []TaskOutcome) *NodeError {
	var last *NodeError
	for _, oc := range outcomes {
		if oc.Err == nil {
			continue
		}
		if ne, isNodeErr := oc.Err.(*NodeError); isNodeErr && ne.Kind == KindTerminal {
			last = ne
		}
	}
	return last
}

// commitInterrupt produces and persists a bookmark checkpoint carrying the.
// interrupted node's name and payload, so a later Resume call knows where.
// and with what to re-admit the paused task (§4.6 Interrupted state, §9).
func (e *Engine) commitInterrupt(ctx context.Context, runID string, cp *Checkpoint, superstep int, nodeName string, payload any) (*Checkpoint, error) {
	icp := cloneCheckpoint(cp)
	icp.ParentID = cp.ID
	icp.ID = NewCheckpointID()
	icp.Timestamp = time.Now().UTC()
	icp.Metadata = map[string]any{
		"source":           SourceInterrupt,
		"interrupted_node": nodeName,
	}
	if payload != nil {
		icp.Metadata["interrupt_payload"] = payload
	}
	if e.saver != nil {
		if _, err := e.saver.Put(ctx, store.RunConfig{RunID: runID}, icp, store.CheckpointMetadata{Source: SourceInterrupt, Step: superstep, ParentID: cp.ID}); err != nil {
			return nil, fmt.Errorf("run %s: commit interrupt checkpoint: %w", runID, err)
		}
	}
	return icp, nil
}

// streamEnabled reports whether mode is among the configured StreamModes.
func (e *Engine) streamEnabled(mode StreamMode) bool {
	for _, m := range e.opts.StreamModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (e *Engine) emitDebug(runID string, superstep int, nodeID, checkpointID, msg string) {
	if !e.streamEnabled(StreamDebug) {
		return
	}
	e.emitter.Emit(emit.Event{
		ID:           NewCheckpointID(),
		Mode:         emit.ModeDebug,
		RunID:        runID,
		SuperstepID:  superstep,
		CheckpointID: checkpointID,
		NodeID:       nodeID,
		Msg:          msg,
	})
}

func (e *Engine) emitTasks(runID string, superstep int, checkpointID string, tasks []Task) {
	if !e.streamEnabled(StreamTasks) {
		return
	}
	for _, t := range tasks {
		e.emitter.Emit(emit.Event{
			ID:           NewCheckpointID(),
			Mode:         emit.ModeTasks,
			RunID:        runID,
			SuperstepID:  superstep,
			CheckpointID: checkpointID,
			NodeID:       t.Node.Name(),
			Msg:          "task_start",
			Meta:         map[string]interface{}{"triggered_by": t.TriggeredBy},
		})
	}
}

func (e *Engine) emitValues(runID string, superstep int, cp *Checkpoint, channels map[string]*Channel) {
	if !e.streamEnabled(StreamValues) {
		return
	}
	snapshot := make(map[string]any, len(channels))
	for name, ch := range channels {
		if v := ch.Snapshot(); v != nil {
			snapshot[name] = v
		}
	}
	e.emitter.Emit(emit.Event{
		ID:           NewCheckpointID(),
		Mode:         emit.ModeValues,
		RunID:        runID,
		SuperstepID:  superstep,
		CheckpointID: cp.ID,
		Msg:          "superstep_complete",
		Meta:         map[string]interface{}{"channel_values": snapshot},
	})
}

func (e *Engine) emitUpdates(runID string, superstep int, cp *Checkpoint, outcomes []TaskOutcome) {
	if !e.streamEnabled(StreamUpdates) {
		return
	}
	for _, oc := range outcomes {
		meta := map[string]interface{}{}
		if oc.Err != nil {
			meta["error"] = oc.Err.Error()
		} else {
			meta["output"] = oc.Value
		}
		e.emitter.Emit(emit.Event{
			ID:           NewCheckpointID(),
			Mode:         emit.ModeUpdates,
			RunID:        runID,
			SuperstepID:  superstep,
			CheckpointID: cp.ID,
			NodeID:       oc.Task.Node.Name(),
			Msg:          "task_complete",
			Meta:         meta,
		})
	}
}
