package graph

// contextKey is a private type for context value keys, so this package's.
// keys never collide with another package's (§6.1 node function contract:.
// a node may inspect its own execution context for run/superstep identity).
type contextKey string

const (
	// RunIDKey retrieves the current run's identifier from a node's context.
	RunIDKey contextKey = "pregel.run_id"

	// SuperstepIDKey retrieves the current superstep number.
	SuperstepIDKey contextKey = "pregel.superstep_id"

	// NodeIDKey retrieves the currently executing node's name.
	NodeIDKey contextKey = "pregel.node_id"

	// OrderKeyKey retrieves the node's deterministic dispatch order key.
	OrderKeyKey contextKey = "pregel.order_key"

	// AttemptKey retrieves the current retry attempt number (1-indexed).
	AttemptKey contextKey = "pregel.attempt"

	// RNGKey retrieves the per-task deterministic *rand.Rand, seeded from.
	// the engine's RNGSeed, superstep, and node name (§9).
	RNGKey contextKey = "pregel.rng"

	// MetricsKey retrieves the engine's *PrometheusMetrics, if enabled.
	MetricsKey contextKey = "pregel.metrics"

	// CostTrackerKey retrieves the engine's *CostTracker, if enabled.
	CostTrackerKey contextKey = "pregel.cost_tracker"
)
