package graph

import "testing"

func baseCheckpoint() *Checkpoint {
	return &Checkpoint{
		ID:              NewCheckpointID(),
		ChannelValues:   map[string]any{},
		ChannelVersions: map[string]uint64{},
		VersionsSeen:    map[string]map[string]uint64{},
		Metadata:        map[string]any{"source": SourceInput},
	}
}

func TestMerger_LastWriteSortLastWins(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "shared", Variant: LastWrite})
	nodeA := echoNode("A", nil, nil, []string{"shared"})
	nodeB := echoNode("B", nil, nil, []string{"shared"})
	g.AddNode(nodeA)
	g.AddNode(nodeB)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	channels := newTestChannels(g)
	m := NewMerger(g)

	outcomes := []TaskOutcome{
		{Task: Task{Node: nodeA, WriteChannels: []string{"shared"}, TriggerVersions: map[string]uint64{}}, Value: "a"},
		{Task: Task{Node: nodeB, WriteChannels: []string{"shared"}, TriggerVersions: map[string]uint64{}}, Value: "b"},
	}
	next, err := m.Merge(channels, baseCheckpoint(), "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.ChannelValues["shared"] != "b" {
		t.Errorf("shared = %v, want %q (B sorts after A)", next.ChannelValues["shared"], "b")
	}
	if next.ChannelVersions["shared"] != 1 {
		t.Errorf("version = %d, want 1", next.ChannelVersions["shared"])
	}
}

func TestMerger_FailedTaskContributesNoWriteButUpdatesVersionsSeen(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "out", Variant: LastWrite})
	nodeA := echoNode("A", []string{"in"}, nil, []string{"out"})
	g.AddNode(nodeA)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	channels := newTestChannels(g)
	m := NewMerger(g)

	outcomes := []TaskOutcome{
		{Task: Task{Node: nodeA, WriteChannels: []string{"out"}, TriggerVersions: map[string]uint64{"in": 1}}, Err: Terminal("A", "boom", nil)},
	}
	cp := baseCheckpoint()
	next, err := m.Merge(channels, cp, "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, ok := next.ChannelValues["out"]; ok {
		t.Error("failed task should not have written to 'out'")
	}
	if next.VersionsSeen["A"]["in"] != 1 {
		t.Error("a failed task should still advance versions_seen for the channels that triggered it")
	}
}

func TestMerger_ConditionalEdgeRedirectsWrite(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "route_a", Variant: LastWrite})
	g.AddChannel(ChannelSpec{Name: "route_b", Variant: LastWrite})
	router := echoNode("router", nil, nil, nil)
	targetB := echoNode("b_node", []string{"route_b"}, nil, nil)
	g.AddNode(router)
	g.AddNode(targetB)
	g.AddEdge(ConditionalEdge("router", func(output any) []string { return []string{"b_node"} }))
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	channels := newTestChannels(g)
	m := NewMerger(g)

	outcomes := []TaskOutcome{
		{Task: Task{Node: router, TriggerVersions: map[string]uint64{}}, Value: "go-b"},
	}
	next, err := m.Merge(channels, baseCheckpoint(), "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.ChannelValues["route_b"] != "go-b" {
		t.Errorf("route_b = %v, want %q", next.ChannelValues["route_b"], "go-b")
	}
}

func TestMerger_ConditionalEdgeReplacesOwnDeclaredWrites(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "default_out", Variant: LastWrite})
	g.AddChannel(ChannelSpec{Name: "route_b", Variant: LastWrite})
	router := echoNode("router", nil, nil, []string{"default_out"})
	targetB := echoNode("b_node", []string{"route_b"}, nil, nil)
	g.AddNode(router)
	g.AddNode(targetB)
	g.AddEdge(ConditionalEdge("router", func(output any) []string { return []string{"b_node"} }))
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	channels := newTestChannels(g)
	m := NewMerger(g)

	outcomes := []TaskOutcome{
		{Task: Task{Node: router, WriteChannels: []string{"default_out"}, TriggerVersions: map[string]uint64{}}, Value: "go-b"},
	}
	next, err := m.Merge(channels, baseCheckpoint(), "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.ChannelValues["route_b"] != "go-b" {
		t.Errorf("route_b = %v, want %q", next.ChannelValues["route_b"], "go-b")
	}
	if _, ok := next.ChannelValues["default_out"]; ok {
		t.Error("a conditional edge must redirect the write, not also write the node's own declared channel")
	}
}

func TestMerger_TicksEphemeralChannels(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "scratch", Variant: Ephemeral})
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	channels := newTestChannels(g)
	channels["scratch"].WriteBatch([]any{"v1"})

	m := NewMerger(g)
	cp := baseCheckpoint()
	next, err := m.Merge(channels, cp, "run-1", 1, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.ChannelValues["scratch"] != "v1" {
		t.Error("ephemeral value should survive the superstep immediately following the write")
	}

	next2, err := m.Merge(channels, next, "run-1", 2, nil)
	if err != nil {
		t.Fatalf("Merge (second superstep): %v", err)
	}
	if _, ok := next2.ChannelValues["scratch"]; ok {
		t.Error("ephemeral value should be cleared by the second subsequent superstep")
	}
}

func TestMerger_IdempotencyKeyDeterministicAcrossIdenticalInputs(t *testing.T) {
	g := NewGraph()
	g.AddChannel(ChannelSpec{Name: "out", Variant: LastWrite})
	nodeA := echoNode("A", nil, nil, []string{"out"})
	g.AddNode(nodeA)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	m := NewMerger(g)

	outcomes := []TaskOutcome{
		{Task: Task{Node: nodeA, WriteChannels: []string{"out"}, TriggerVersions: map[string]uint64{}}, Value: "x"},
	}
	c1 := newTestChannels(g)
	c2 := newTestChannels(g)
	next1, err := m.Merge(c1, baseCheckpoint(), "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge 1: %v", err)
	}
	next2, err := m.Merge(c2, baseCheckpoint(), "run-1", 1, outcomes)
	if err != nil {
		t.Fatalf("Merge 2: %v", err)
	}
	if next1.IdempotencyKey != next2.IdempotencyKey {
		t.Errorf("idempotency keys differ for identical input: %q != %q", next1.IdempotencyKey, next2.IdempotencyKey)
	}
}
