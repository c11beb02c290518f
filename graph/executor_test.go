package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T, cfg ExecutorConfig) *Executor {
	t.Helper()
	ex, err := NewExecutor(4, cfg)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	t.Cleanup(ex.Release)
	return ex
}

func TestExecutor_SucceedsOnFirstAttempt(t *testing.T) {
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	node := echoNode("A", nil, nil, []string{"out"})
	task := Task{Node: node, Input: "hi", TriggerVersions: map[string]uint64{}}

	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if outcomes[0].Err != nil || outcomes[0].Value != "hi" {
		t.Errorf("outcome = %+v, want value %q, no error", outcomes[0], "hi")
	}
}

func TestExecutor_RetriesRetryableErrorUntilSuccess(t *testing.T) {
	var attempts int32
	node := NodeFunc{
		NodeName: "flaky",
		Fn: func(ctx context.Context, input any) (any, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return nil, Retryable("flaky", "transient", errors.New("boom"))
			}
			return "ok", nil
		},
		NodePolicyRef: &NodePolicy{
			RetryPolicy: &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond},
		},
	}
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	task := Task{Node: node, Input: nil, TriggerVersions: map[string]uint64{}}

	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if outcomes[0].Err != nil {
		t.Fatalf("expected eventual success, got err %v", outcomes[0].Err)
	}
	if outcomes[0].Value != "ok" {
		t.Errorf("value = %v, want %q", outcomes[0].Value, "ok")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecutor_TerminalErrorStopsRetrying(t *testing.T) {
	var attempts int32
	node := NodeFunc{
		NodeName: "bad",
		Fn: func(ctx context.Context, input any) (any, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, Terminal("bad", "fatal", errors.New("nope"))
		},
		NodePolicyRef: &NodePolicy{
			RetryPolicy: &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond},
		},
	}
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	task := Task{Node: node, TriggerVersions: map[string]uint64{}}

	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if outcomes[0].Err == nil {
		t.Fatal("expected terminal error to propagate")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (terminal errors do not retry)", attempts)
	}
}

func TestExecutor_InterruptStopsRetryingAndSurfacesPayload(t *testing.T) {
	node := NodeFunc{
		NodeName: "pausing",
		Fn: func(ctx context.Context, input any) (any, error) {
			return nil, InterruptErr("pausing", "waiting-for-human")
		},
		NodePolicyRef: &NodePolicy{
			RetryPolicy: &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
		},
	}
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	task := Task{Node: node, TriggerVersions: map[string]uint64{}}

	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if !IsInterrupt(outcomes[0].Err) {
		t.Fatalf("expected interrupt error, got %v", outcomes[0].Err)
	}
	var ne *NodeError
	if errors.As(outcomes[0].Err, &ne) {
		if ne.Payload != "waiting-for-human" {
			t.Errorf("payload = %v, want %q", ne.Payload, "waiting-for-human")
		}
	}
}

func TestExecutor_InjectsRunAndNodeIdentityIntoContext(t *testing.T) {
	var gotRunID, gotNodeID any
	var gotSuperstep any
	node := NodeFunc{
		NodeName: "inspector",
		Fn: func(ctx context.Context, input any) (any, error) {
			gotRunID = ctx.Value(RunIDKey)
			gotNodeID = ctx.Value(NodeIDKey)
			gotSuperstep = ctx.Value(SuperstepIDKey)
			return nil, nil
		},
	}
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	task := Task{Node: node, TriggerVersions: map[string]uint64{}}

	if _, err := ex.ExecuteSuperstep(context.Background(), "run-xyz", 7, []Task{task}); err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if gotRunID != "run-xyz" {
		t.Errorf("RunIDKey = %v, want %q", gotRunID, "run-xyz")
	}
	if gotNodeID != "inspector" {
		t.Errorf("NodeIDKey = %v, want %q", gotNodeID, "inspector")
	}
	if gotSuperstep != 7 {
		t.Errorf("SuperstepIDKey = %v, want 7", gotSuperstep)
	}
}

func TestExecutor_AttemptAndRNGAreObservablePerAttempt(t *testing.T) {
	var attemptsSeen []int
	node := NodeFunc{
		NodeName: "counts",
		Fn: func(ctx context.Context, input any) (any, error) {
			n, _ := ctx.Value(AttemptKey).(int)
			attemptsSeen = append(attemptsSeen, n)
			if ctx.Value(RNGKey) == nil {
				t.Error("expected RNGKey to be set in attempt context")
			}
			if n < 2 {
				return nil, Retryable("counts", "retry me", nil)
			}
			return "done", nil
		},
		NodePolicyRef: &NodePolicy{
			RetryPolicy: &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
		},
	}
	ex := newTestExecutor(t, ExecutorConfig{DefaultTimeout: time.Second})
	task := Task{Node: node, TriggerVersions: map[string]uint64{}}

	outcomes, err := ex.ExecuteSuperstep(context.Background(), "run-1", 1, []Task{task})
	if err != nil {
		t.Fatalf("ExecuteSuperstep: %v", err)
	}
	if outcomes[0].Err != nil {
		t.Fatalf("expected success after retry, got %v", outcomes[0].Err)
	}
	if len(attemptsSeen) != 2 || attemptsSeen[0] != 1 || attemptsSeen[1] != 2 {
		t.Errorf("attemptsSeen = %v, want [1 2]", attemptsSeen)
	}
}

func TestExecutor_DispatchOrderIsDeterministicAcrossRuns(t *testing.T) {
	tasks := []Task{
		{Node: echoNode("z", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("a", nil, nil, nil), TriggerVersions: map[string]uint64{}},
		{Node: echoNode("m", nil, nil, nil), TriggerVersions: map[string]uint64{}},
	}
	order1 := orderTasks("run-1", 3, tasks)
	order2 := orderTasks("run-1", 3, tasks)
	if len(order1) != len(order2) {
		t.Fatalf("order lengths differ: %d != %d", len(order1), len(order2))
	}
	for i := range order1 {
		if order1[i].Task.Node.Name() != order2[i].Task.Node.Name() {
			t.Errorf("order mismatch at %d: %q != %q", i, order1[i].Task.Node.Name(), order2[i].Task.Node.Name())
		}
	}
}
