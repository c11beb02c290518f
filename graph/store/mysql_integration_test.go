package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-corp/pregelgraph/graph"
	"github.com/m-corp/pregelgraph/graph/store"
)

// TestMySQLIntegration_MultiSuperstepResumption exercises a realistic
// resumption scenario against a real MySQL database: several supersteps
// committed in sequence, then a resume from the latest checkpoint followed
// by List to inspect the full run history. Requires TEST_MYSQL_DSN.
func TestMySQLIntegration_MultiSuperstepResumption(t *testing.T) {
	ctx := context.Background()
	st := newTestMySQLStore(t)
	runID := "integration-run-" + graph.NewCheckpointID()

	var parentID string
	for step := 1; step <= 3; step++ {
		cp := &graph.Checkpoint{
			ID:              graph.NewCheckpointID(),
			ParentID:        parentID,
			ChannelValues:   map[string]any{"step": step},
			ChannelVersions: map[string]uint64{"step": uint64(step)},
			VersionsSeen:    map[string]map[string]uint64{"accumulate": {"step": uint64(step)}},
			Timestamp:       time.Now().UTC(),
			Metadata:        map[string]any{"source": graph.SourceStep},
			IdempotencyKey:  "sha256:" + runID + "-" + graph.NewCheckpointID(),
		}
		if _, err := st.Put(ctx, store.RunConfig{RunID: runID}, cp, store.CheckpointMetadata{Source: "step", Step: step, ParentID: parentID}); err != nil {
			t.Fatalf("Put step %d: %v", step, err)
		}
		parentID = cp.ID
	}

	latest, err := st.GetTuple(ctx, store.RunConfig{RunID: runID})
	if err != nil {
		t.Fatalf("GetTuple latest: %v", err)
	}
	if latest.Checkpoint.ChannelValues["step"] != float64(3) {
		t.Errorf("resumed at step %v, want 3", latest.Checkpoint.ChannelValues["step"])
	}

	history, err := st.List(ctx, store.ListFilter{RunID: runID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("List returned %d checkpoints, want 3", len(history))
	}
}
