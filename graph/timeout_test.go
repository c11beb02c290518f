package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetNodeTimeout_PolicyOverridesDefault(t *testing.T) {
	policy := &NodePolicy{Timeout: 5 * time.Second}
	got := getNodeTimeout(policy, time.Second)
	if got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}
}

func TestGetNodeTimeout_FallsBackToDefaultWhenPolicyUnset(t *testing.T) {
	got := getNodeTimeout(nil, 2*time.Second)
	if got != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", got)
	}
}

func TestGetNodeTimeout_ZeroWhenNeitherSet(t *testing.T) {
	if got := getNodeTimeout(nil, 0); got != 0 {
		t.Errorf("timeout = %v, want 0 (unlimited)", got)
	}
}

func TestExecuteNodeWithTimeout_RunsUnboundedWhenNoTimeout(t *testing.T) {
	node := NodeFunc{NodeName: "n", Fn: func(ctx context.Context, input any) (any, error) {
		return "ok", nil
	}}
	v, err := executeNodeWithTimeout(context.Background(), node, nil, nil, 0)
	if err != nil || v != "ok" {
		t.Errorf("got %v, %v, want \"ok\", nil", v, err)
	}
}

func TestExecuteNodeWithTimeout_DeadlineExceededWrapsAsRetryable(t *testing.T) {
	node := NodeFunc{NodeName: "slow", Fn: func(ctx context.Context, input any) (any, error) {
		<-ctx.Done()
		return nil, nil
	}}
	_, err := executeNodeWithTimeout(context.Background(), node, nil, nil, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error on deadline exceeded")
	}
	var ne *NodeError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NodeError, got %T", err)
	}
	if ne.Kind != KindRetryable {
		t.Errorf("kind = %v, want KindRetryable", ne.Kind)
	}
	if !errors.Is(err, ErrNodeRetryable) {
		t.Error("expected error chain to contain ErrNodeRetryable")
	}
}

func TestExecuteNodeWithTimeout_NodeOwnErrorTakesPrecedenceOverDeadline(t *testing.T) {
	wantErr := errors.New("node failed on its own")
	node := NodeFunc{NodeName: "n", Fn: func(ctx context.Context, input any) (any, error) {
		return nil, wantErr
	}}
	_, err := executeNodeWithTimeout(context.Background(), node, nil, nil, time.Second)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
