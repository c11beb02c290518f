// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for.
// superstep execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "langgraph_"):
//
// 1. inflight_nodes (gauge): Current number of tasks executing concurrently.
// within a superstep.
// Labels: run_id, graph_id.
// Use: Monitor concurrency levels and detect bottlenecks.
//
// 2. queue_depth (gauge): Number of tasks in the current superstep still.
// awaiting a worker-pool slot.
// Labels: run_id, graph_id.
// Use: Track worker-pool saturation within a superstep.
//
// 3. step_latency_ms (histogram): Duration of a superstep's Execute phase in.
// milliseconds (task dispatch until every task has finished).
// Labels: run_id, node_id, status (success/error).
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
// Use: P50/P95/P99 latency analysis per superstep.
//
// 4. retries_total (counter): Cumulative retry attempts across all tasks.
// Labels: run_id, node_id, reason.
// Use: Identify flaky nodes and error patterns.
//
// 5. merge_conflicts_total (counter): Concurrent channel write conflicts.
// resolved by the Write Merger's deterministic sort-merge.
// Labels: run_id, conflict_type.
// Use: Monitor how often the sort-last tie-break actually decides a write.
//
// 6. backpressure_events_total (counter): Worker-pool saturation events within.
// a superstep.
// Labels: run_id, reason.
// Use: Track when task dispatch is throttled by MaxConcurrentTasks.
//
// Usage:
//
// // Create metrics with custom registry.
// registry := prometheus.NewRegistry().
// metrics := NewPrometheusMetrics(registry).
//
// // Integrate with engine.
// engine, err := New(g, saver, emitter,.
//
//	WithMetrics(metrics),
//
// ).
//
// // Metrics automatically update during execution.
//
//	// Expose via HTTP for Prometheus scraping:
//
// http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).
//
// Thread-safe: All methods use atomic operations or mutex protection.
type PrometheusMetrics struct {
	// Gauge metrics (current value observations).
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	// Histogram metrics (distribution observations).
	stepLatency *prometheus.HistogramVec

	// Counter metrics (cumulative totals).
	retries        *prometheus.CounterVec
	mergeConflicts *prometheus.CounterVec
	backpressure   *prometheus.CounterVec

	// Registry holds all registered metrics.
	registry prometheus.Registerer

	// Mutex protects concurrent metric updates.
	mu sync.RWMutex

	// enabled controls whether metrics are recorded.
	enabled bool
}

// NewPrometheusMetrics creates and registers all superstep execution metrics.
// with the provided Prometheus registry.
//
// Parameters:
// - registry: Prometheus registry to register metrics with (use prometheus.DefaultRegisterer for global registry).
//
// Returns:
// - *PrometheusMetrics: Fully initialized metrics collector.
//
// All metrics are registered with namespace "langgraph" and appropriate labels.
// Histograms use buckets optimized for typical superstep durations (1ms to 10s).
//
// Example:
//
// // Use default global registry.
// metrics := NewPrometheusMetrics(prometheus.DefaultRegisterer).
//
// // Use custom registry (recommended for isolation).
// registry := prometheus.NewRegistry().
// metrics := NewPrometheusMetrics(registry).
// http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	// 1. inflight_nodes gauge.
	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "langgraph",
		Name:      "inflight_nodes",
		Help:      "Current number of tasks executing concurrently within a superstep",
	})

	// 2. queue_depth gauge.
	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "langgraph",
		Name:      "queue_depth",
		Help:      "Number of tasks in the current superstep awaiting a worker-pool slot",
	})

	// 3. step_latency_ms histogram.
	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "langgraph",
		Name:      "step_latency_ms",
		Help:      "Superstep Execute-phase duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
	}, []string{"run_id", "node_id", "status"}) // status: success, error, timeout

	// 4. retries_total counter.
	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "langgraph",
		Name:      "retries_total",
		Help:      "Cumulative count of task retry attempts across all executions",
	}, []string{"run_id", "node_id", "reason"}) // reason: error, timeout, transient

	// 5. merge_conflicts_total counter.
	pm.mergeConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "langgraph",
		Name:      "merge_conflicts_total",
		Help:      "Concurrent channel write conflicts resolved by the deterministic sort-merge",
	}, []string{"run_id", "conflict_type"}) // conflict_type: reducer_error, state_divergence

	// 6. backpressure_events_total counter.
	pm.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "langgraph",
		Name:      "backpressure_events_total",
		Help:      "Worker-pool saturation events where task dispatch was throttled",
	}, []string{"run_id", "reason"}) // reason: queue_full, max_concurrent, timeout

	return pm
}

// RecordStepLatency records the duration of one superstep's Execute phase in milliseconds.
//
// This updates the step_latency_ms histogram with labels for run_id, node_id, and status.
// Use this to track P50/P95/P99 superstep latencies for performance monitoring.
//
// Parameters:
// - runID: Unique run identifier.
// - nodeID: Node identifier, or "*" when recording whole-superstep latency.
// - latency: Execute-phase duration.
// - status: Execution outcome ("success", "error", "timeout").
//
// Example:
//
// start := time.Now().
// outcomes, err := executor.ExecuteSuperstep(ctx, runID, superstep, tasks).
// metrics.RecordStepLatency(runID, "*", time.Since(start), "success").
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.enabled {
		return
	}

	latencyMs := float64(latency.Milliseconds())
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(latencyMs)
}

// IncrementRetries increments the retry counter for a specific node and reason.
//
// This updates the retries_total counter with labels for run_id, node_id, and reason.
// Use this to identify flaky nodes and error patterns requiring investigation.
//
// Parameters:
// - runID: Unique run identifier.
// - nodeID: Node whose task is being retried.
// - reason: Retry cause ("error", "timeout", "transient").
//
// Example:
//
// if result.Err != nil {.
// metrics.IncrementRetries(runID, nodeID, "error").
//
//		    // Retry logic...
//	}.
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.enabled {
		return
	}

	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// UpdateQueueDepth sets the current number of tasks awaiting a worker-pool slot.
//
// This updates the queue_depth gauge. Use this to monitor worker-pool.
// saturation within a superstep.
//
// Parameters:
// - depth: Current number of tasks waiting for a free worker.
//
// Example:
//
// metrics.UpdateQueueDepth(len(pendingTasks)).
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.enabled {
		return
	}

	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets the current number of tasks executing concurrently.
//
// This updates the inflight_nodes gauge. Use this to monitor concurrency levels.
// and detect whether MaxConcurrentTasks is being reached.
//
// Parameters:
// - count: Current number of tasks in execution.
//
// Example:
//
// metrics.UpdateInflightNodes(len(tasks)).
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.enabled {
		return
	}

	pm.inflightNodes.Set(float64(count))
}

// IncrementMergeConflicts increments the merge conflict counter.
//
// This updates the merge_conflicts_total counter with labels for run_id and conflict_type.
// Use this to detect reducer errors or unexpected concurrent writes to the same channel.
//
// Parameters:
// - runID: Unique run identifier.
// - conflictType: Type of conflict ("reducer_error", "state_divergence").
//
// Example:
//
// if err := reduce(prev, next); err != nil {.
// metrics.IncrementMergeConflicts(runID, "reducer_error").
// }.
func (pm *PrometheusMetrics) IncrementMergeConflicts(runID, conflictType string) {
	if !pm.enabled {
		return
	}

	pm.mergeConflicts.WithLabelValues(runID, conflictType).Inc()
}

// IncrementBackpressure increments the backpressure event counter.
//
// This updates the backpressure_events_total counter with labels for run_id and reason.
// Use this to track when task dispatch within a superstep is throttled by the.
// worker pool (MaxConcurrentTasks reached, etc.).
//
// Parameters:
// - runID: Unique run identifier.
// - reason: Backpressure cause ("queue_full", "max_concurrent", "timeout").
//
// Example:
//
// if queueDepth >= maxQueueDepth {.
// metrics.IncrementBackpressure(runID, "queue_full").
// return ErrBackpressure.
// }.
func (pm *PrometheusMetrics) IncrementBackpressure(runID, reason string) {
	if !pm.enabled {
		return
	}

	pm.backpressure.WithLabelValues(runID, reason).Inc()
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears all metric values (useful for testing).
// This does not unregister metrics from the registry.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.inflightNodes.Set(0)
	pm.queueDepth.Set(0)
	// Note: Counters cannot be reset in Prometheus (cumulative by design).
	// Histograms also maintain cumulative observations.
}
