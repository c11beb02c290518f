package model

import (
	"context"

	"github.com/m-corp/pregelgraph/graph"
)

// CostTrackingChatModel wraps a ChatModel and records each completed call's
// Usage against the run's *graph.CostTracker, so a node that calls an LLM
// has its spend attributed without the node itself knowing about cost
// tracking. The engine places the run's CostTracker on ctx
// (graph.CostTrackerKey) and its Task Executor adds the executing node's
// name (graph.NodeIDKey); this decorator is how that context reaches RecordLLMCall.
type CostTrackingChatModel struct {
	inner ChatModel
}

// NewCostTrackingChatModel wraps inner so every successful Chat call records
// its Usage (when the provider reported one) against whatever *graph.CostTracker
// the calling node's context carries.
func NewCostTrackingChatModel(inner ChatModel) *CostTrackingChatModel {
	return &CostTrackingChatModel{inner: inner}
}

// Chat implements ChatModel, delegating to the wrapped model and recording
// Usage against ctx's cost tracker, if both are present.
func (m *CostTrackingChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := m.inner.Chat(ctx, messages, tools)
	if err != nil || out.Usage.Model == "" {
		return out, err
	}

	tracker, _ := ctx.Value(graph.CostTrackerKey).(*graph.CostTracker)
	if tracker == nil {
		return out, nil
	}
	nodeID, _ := ctx.Value(graph.NodeIDKey).(string)
	_ = tracker.RecordLLMCall(out.Usage.Model, out.Usage.InputTokens, out.Usage.OutputTokens, nodeID)
	return out, nil
}
