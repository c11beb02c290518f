package graph

import "testing"

func TestComputeOrderKey_DeterministicForSameInputs(t *testing.T) {
	k1 := ComputeOrderKey("run-1", 3, "nodeA")
	k2 := ComputeOrderKey("run-1", 3, "nodeA")
	if k1 != k2 {
		t.Errorf("keys differ for identical inputs: %d != %d", k1, k2)
	}
}

func TestComputeOrderKey_DiffersAcrossRunSuperstepOrNode(t *testing.T) {
	base := ComputeOrderKey("run-1", 1, "nodeA")
	if ComputeOrderKey("run-2", 1, "nodeA") == base {
		t.Error("expected different run id to change the key")
	}
	if ComputeOrderKey("run-1", 2, "nodeA") == base {
		t.Error("expected different superstep to change the key")
	}
	if ComputeOrderKey("run-1", 1, "nodeB") == base {
		t.Error("expected different node name to change the key")
	}
}

func TestOrderTasks_StableAcrossRepeatedCalls(t *testing.T) {
	tasks := []Task{
		{Node: echoNode("delta", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("alpha", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("charlie", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("bravo", nil, nil, nil), TriggerVersions: map[string]uint64{}},
	}
	first := orderTasks("run-7", 2, tasks)
	for i := 0; i < 5; i++ {
		again := orderTasks("run-7", 2, tasks)
		for j := range first {
			if first[j].Task.Node.Name() != again[j].Task.Node.Name() {
				t.Fatalf("order not stable across calls: %v != %v", first, again)
			}
		}
	}
}

func TestOrderTasks_SortedByOrderKeyAscending(t *testing.T) {
	tasks := []Task{
		{Node: echoNode("x", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("y", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("z", nil, nil, nil), TriggerVersions: map[string]uint64{}},
	}
	ordered := orderTasks("run-1", 1, tasks)
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].OrderKey > ordered[i].OrderKey {
			t.Errorf("order not ascending at index %d: %d > %d", i, ordered[i-1].OrderKey, ordered[i].OrderKey)
		}
	}
}
