package graph

import (
	"container/heap"
	"crypto/sha256"
	"encoding/binary"
)

// Scheduler provides deterministic dispatch ordering for tasks within one.
// superstep (§5: "task execution order is undefined" at the semantic.
// level, but a reproducible goroutine-launch order aids replay/debugging.
// and gives the Executor's bounded worker pool a stable drain order).

// TaskItem pairs a Task with a deterministic OrderKey for heap ordering.
type TaskItem struct {
	// OrderKey is a deterministic sort key computed from hash(runID, superstep, nodeName).
	OrderKey uint64

	// Task is the scheduling record to execute.
	Task Task
}

// ComputeOrderKey generates a deterministic sort key from the run id,.
// superstep number, and node name, so dispatch order is reproducible.
// across replays regardless of goroutine scheduling.
func ComputeOrderKey(runID string, superstep int, nodeName string) uint64 {
	h := sha256.New()
	h.Write([]byte(runID))

	stepBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(stepBytes, uint32(superstep))
	h.Write(stepBytes)

	h.Write([]byte(nodeName))

	hashBytes := h.Sum(nil)
	return binary.BigEndian.Uint64(hashBytes[:8])
}

// taskHeap implements heap.Interface for priority-queue ordering by OrderKey.
type taskHeap []TaskItem

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(TaskItem)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// orderTasks sorts tasks by their deterministic OrderKey, returning the.
// stable dispatch order for one superstep's Task Executor.
func orderTasks(runID string, superstep int, tasks []Task) []TaskItem {
	h := make(taskHeap, 0, len(tasks))
	for _, t := range tasks {
		h = append(h, TaskItem{OrderKey: ComputeOrderKey(runID, superstep, t.Node.Name()), Task: t})
	}
	heap.Init(&h)
	ordered := make([]TaskItem, 0, len(tasks))
	for h.Len() > 0 {
		ordered = append(ordered, heap.Pop(&h).(TaskItem))
	}
	return ordered
}
