package graph

import "time"

// Option is a functional option for configuring an Engine (§6.6).
//
// Functional options provide a clean, extensible API for engine configuration:
//
//	engine, err := New(g, saver, emitter, WithMaxSupersteps(100), WithDefaultNodeTimeout(10*time.Second))
type Option func(*engineConfig) error

// engineConfig collects options before they're applied to an Engine, so.
// options can be validated and composed before construction.
type engineConfig struct {
	opts Options
}

// Options configures Engine execution behavior. Zero values are valid; the.
// Engine falls back to sensible defaults.
type Options struct {
	// MaxSupersteps limits execution to prevent infinite loops across.
	// supersteps. If 0, a default of 100 is used (§4.6 Merge state:
	// "check step limit → Plan (or → Terminated if limit hit)").
	MaxSupersteps int

	// MaxConcurrentTasks bounds the Task Executor's worker pool size.
	// Default: 8.
	MaxConcurrentTasks int

	// DefaultNodeTimeout is the timeout applied to nodes without their own.
	// NodePolicy.Timeout. Default: 30s.
	DefaultNodeTimeout time.Duration

	// DefaultRetryPolicy is applied to nodes whose Policy() returns nil or.
	// a nil RetryPolicy.
	DefaultRetryPolicy *RetryPolicy

	// RunWallClockBudget is the maximum total execution time for Run().
	// Default: 0 (disabled).
	RunWallClockBudget time.Duration

	// StreamModes selects which event modes are emitted (§4.6). Default:.
	// all four modes.
	StreamModes []StreamMode

	// SubscriberCapacity holds the per-subscriber event-channel capacity.
	// Default: 100. The Engine does not read it: events go synchronously
	// to the configured Emitter, and there is no bounded subscriber channel.
	SubscriberCapacity int

	// InterruptBefore names nodes that trigger an interrupt immediately.
	// before they would execute (§4.6).
	InterruptBefore []string

	// InterruptAfter names nodes that trigger an interrupt immediately.
	// after their write is committed (§4.6).
	InterruptAfter []string

	// ReplayMode selects replay using recorded I/O (§7). The Engine stores.
	// it but does not read it; Run always executes nodes live.
	ReplayMode bool

	// StrictReplay selects whether a recorded-I/O hash mismatch is fatal.
	// Default: true. Like ReplayMode, the Engine does not read it.
	StrictReplay bool

	// RNGSeed seeds jitter and replay-sensitive randomness, derived from.
	// runID by default when zero.
	RNGSeed int64

	// Metrics enables Prometheus metrics collection. Nil disables it.
	Metrics *PrometheusMetrics

	// CostTracker enables LLM cost tracking. Nil disables it.
	CostTracker *CostTracker

	// TaskCache backs result caching for nodes whose NodePolicy.Cache is.
	// enabled. Nil disables caching for the whole engine.
	TaskCache TaskCache
}

// StreamMode selects an event class for streaming subscribers (§4.6).
type StreamMode int

const (
	StreamValues StreamMode = iota
	StreamUpdates
	StreamTasks
	StreamDebug
)

func defaultStreamModes() []StreamMode {
	return []StreamMode{StreamValues, StreamUpdates, StreamTasks, StreamDebug}
}

// WithMaxSupersteps limits execution to prevent infinite loops.
func WithMaxSupersteps(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxSupersteps = n
		return nil
	}
}

// WithMaxConcurrentTasks bounds the Task Executor's worker pool size.
func WithMaxConcurrentTasks(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxConcurrentTasks = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout for nodes without Policy().Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithDefaultRetryPolicy sets the retry policy for nodes without their own.
func WithDefaultRetryPolicy(p *RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultRetryPolicy = p
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time for Run().
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithStreamModes selects which event modes the loop emits.
func WithStreamModes(modes ...StreamMode) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.StreamModes = modes
		return nil
	}
}

// WithSubscriberCapacity sets the bounded event-channel capacity.
func WithSubscriberCapacity(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.SubscriberCapacity = n
		return nil
	}
}

// WithInterruptBefore names nodes that interrupt execution before they run.
func WithInterruptBefore(nodes ...string) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.InterruptBefore = nodes
		return nil
	}
}

// WithInterruptAfter names nodes that interrupt execution after they commit.
func WithInterruptAfter(nodes ...string) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.InterruptAfter = nodes
		return nil
	}
}

// WithReplayMode enables deterministic replay using recorded I/O.
func WithReplayMode(enabled bool) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.ReplayMode = enabled
		return nil
	}
}

// WithStrictReplay controls replay mismatch behavior.
func WithStrictReplay(enabled bool) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.StrictReplay = enabled
		return nil
	}
}

// WithRNGSeed seeds jitter and replay-sensitive randomness.
func WithRNGSeed(seed int64) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RNGSeed = seed
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithCostTracker enables LLM cost tracking with static pricing.
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CostTracker = tracker
		return nil
	}
}

// WithTaskCache enables result caching for nodes whose policy opts in.
func WithTaskCache(cache TaskCache) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.TaskCache = cache
		return nil
	}
}
