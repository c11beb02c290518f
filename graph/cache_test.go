package graph

import (
	"context"
	"testing"
	"time"
)

func TestPathSegment_StringRendersLikeOriginal(t *testing.T) {
	if got := StringSegment("node1").String(); got != "node1" {
		t.Errorf("String() = %q, want %q", got, "node1")
	}
	if got := IntSegment(42).String(); got != "42" {
		t.Errorf("String() = %q, want %q", got, "42")
	}
	tuple := PathSegment{Tuple: []PathSegment{StringSegment("a"), IntSegment(1)}}
	if got := tuple.String(); got != "(a, 1)" {
		t.Errorf("String() = %q, want %q", got, "(a, 1)")
	}
}

func TestComputeCacheKey_DeterministicForIdenticalInput(t *testing.T) {
	k1, ok1 := computeCacheKey("node-a", map[string]any{"x": 1})
	k2, ok2 := computeCacheKey("node-a", map[string]any{"x": 1})
	if !ok1 || !ok2 {
		t.Fatal("expected both inputs to hash successfully")
	}
	if k1 != k2 {
		t.Errorf("keys differ for identical input: %+v != %+v", k1, k2)
	}
}

func TestComputeCacheKey_DiffersAcrossNodeOrInput(t *testing.T) {
	base, _ := computeCacheKey("node-a", 1)
	if other, _ := computeCacheKey("node-b", 1); other == base {
		t.Error("expected different node name to change the key")
	}
	if other, _ := computeCacheKey("node-a", 2); other == base {
		t.Error("expected different input to change the key")
	}
}

func TestComputeCacheKey_RejectsUnmarshalableInput(t *testing.T) {
	if _, ok := computeCacheKey("node-a", func() {}); ok {
		t.Error("expected a func input to be rejected as unhashable")
	}
}

func TestMemTaskCache_PutThenGetRoundTrips(t *testing.T) {
	c := NewMemTaskCache()
	key := CacheKey{NS: []string{"node-a"}, Key: "abc"}
	c.Put(key, "result", 0)
	v, ok := c.Get(key)
	if !ok || v != "result" {
		t.Errorf("Get() = %v, %v, want %q, true", v, ok, "result")
	}
}

func TestMemTaskCache_ExpiresAfterTTL(t *testing.T) {
	c := NewMemTaskCache()
	key := CacheKey{NS: []string{"node-a"}, Key: "abc"}
	c.Put(key, "result", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to be absent")
	}
}

func TestExecutor_CachedResultSkipsSecondExecution(t *testing.T) {
	var runs int
	node := NodeFunc{
		NodeName: "cached",
		Fn: func(ctx context.Context, input any) (any, error) {
			runs++
			return "computed", nil
		},
		NodePolicyRef: &NodePolicy{Cache: &CachePolicy{Enabled: true}},
	}
	cache := NewMemTaskCache()
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second, Cache: cache})

	key, ok := computeCacheKey(node.Name(), "in")
	if !ok {
		t.Fatal("expected cacheable input")
	}
	task := Task{Node: node, Input: "in", TriggerVersions: map[string]uint64{}, CacheKey: &key}

	if _, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task}); err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 2, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if outcomes[0].Value != "computed" {
		t.Errorf("value = %v, want %q", outcomes[0].Value, "computed")
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1 (second call should hit cache)", runs)
	}
}
