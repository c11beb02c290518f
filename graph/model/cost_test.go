package model

import (
	"context"
	"testing"

	"github.com/m-corp/pregelgraph/graph"
)

func TestCostTrackingChatModel_RecordsUsageAgainstContextTracker(t *testing.T) {
	inner := &MockChatModel{
		Responses: []ChatOut{
			{Text: "hi", Usage: Usage{Model: "gpt-4o", InputTokens: 1000, OutputTokens: 500}},
		},
	}
	tracked := NewCostTrackingChatModel(inner)

	tracker := graph.NewCostTracker("run-1", "USD")
	ctx := context.WithValue(context.Background(), graph.CostTrackerKey, tracker)
	ctx = context.WithValue(ctx, graph.NodeIDKey, "research_node")

	if _, err := tracked.Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got := tracker.GetTotalCost(); got <= 0 {
		t.Errorf("GetTotalCost() = %v, want > 0", got)
	}
	calls := tracker.GetCallHistory()
	if len(calls) != 1 || calls[0].NodeID != "research_node" {
		t.Fatalf("call history = %+v, want one call attributed to research_node", calls)
	}
}

func TestCostTrackingChatModel_NoopWithoutTrackerOrUsage(t *testing.T) {
	inner := &MockChatModel{Responses: []ChatOut{{Text: "hi"}}}
	tracked := NewCostTrackingChatModel(inner)

	// No tracker on context: must not panic, must pass the response through.
	out, err := tracked.Chat(context.Background(), nil, nil)
	if err != nil || out.Text != "hi" {
		t.Fatalf("Chat() = %+v, %v", out, err)
	}

	// Tracker present but provider reported no Usage: nothing recorded.
	tracker := graph.NewCostTracker("run-1", "USD")
	ctx := context.WithValue(context.Background(), graph.CostTrackerKey, tracker)
	if _, err := tracked.Chat(ctx, nil, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := tracker.GetTotalCost(); got != 0 {
		t.Errorf("GetTotalCost() = %v, want 0 (no usage reported)", got)
	}
}
