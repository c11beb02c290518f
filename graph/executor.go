package graph

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Task Executor (C4): runs a superstep's eligible tasks concurrently,.
// retries transient failures per policy, and enforces the superstep barrier.
// (wait for all tasks before returning) (§4.4, §5).

// Executor dispatches tasks onto a bounded goroutine pool.
type Executor struct {
	pool           *ants.Pool
	defaultTimeout time.Duration
	defaultPolicy  *RetryPolicy
	rngSeed        int64
	cache          TaskCache
}

// ExecutorConfig configures an Executor's defaults; the Superstep Loop.
// derives one from its own Options (§6.6) when constructing an Executor.
type ExecutorConfig struct {
	DefaultTimeout time.Duration
	DefaultPolicy  *RetryPolicy
	RNGSeed        int64

	// Cache backs any node whose policy enables result caching. Nil.
	// disables caching for the whole executor regardless of per-node policy.
	Cache TaskCache
}

// NewExecutor constructs an Executor with a worker pool of the given.
// concurrency bound (<=0 falls back to ants' default pool size; callers.
// size the pool to their concurrency budget, §5).
func NewExecutor(maxConcurrency int, cfg ExecutorConfig) (*Executor, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = ants.DefaultAntsPoolSize
	}
	pool, err := ants.NewPool(maxConcurrency, ants.WithPreAlloc(false))
	if err != nil {
		return nil, err
	}
	return &Executor{
		pool:           pool,
		defaultTimeout: cfg.DefaultTimeout,
		defaultPolicy:  cfg.DefaultPolicy,
		rngSeed:        cfg.RNGSeed,
		cache:          cfg.Cache,
	}, nil
}

// Release frees the underlying worker pool.
func (e *Executor) Release() {
	e.pool.Release()
}

// ExecuteSuperstep runs all tasks of one superstep concurrently, honoring.
// the superstep barrier: it returns only after every task has reached a.
// terminal outcome (success, terminal error, or interrupt) or ctx is.
// cancelled (§4.4 Execute state, §5 suspension point (a)).
//
// order is the deterministic dispatch order from orderTasks; outcomes are.
// returned in that same order, not completion order, so merge-time tie.
// breaking (by SourcePathIndex) stays reproducible regardless of which.
// goroutine happened to finish first.
func (e *Executor) ExecuteSuperstep(ctx context.Context, runID string, superstep int, tasks []Task) ([]TaskOutcome, error) {
	order := orderTasks(runID, superstep, tasks)
	outcomes := make([]TaskOutcome, len(order))

	var wg sync.WaitGroup
	wg.Add(len(order))
	for i, item := range order {
		i, item := i, item
		err := e.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = e.runTask(ctx, runID, superstep, item.OrderKey, item.Task)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = TaskOutcome{Task: item.Task, Err: err}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, ErrCancelled
	}
	return outcomes, nil
}

// runTask executes one task with retry/backoff and timeout enforcement,.
// stopping early on a terminal error or an interrupt signal (neither is.
// retryable; §4.4, §7).
func (e *Executor) runTask(ctx context.Context, runID string, superstep int, orderKey uint64, task Task) TaskOutcome {
	if e.cache != nil && task.CacheKey != nil {
		if v, ok := e.cache.Get(*task.CacheKey); ok {
			return TaskOutcome{Task: task, Value: v}
		}
	}

	ctx = context.WithValue(ctx, RunIDKey, runID)
	ctx = context.WithValue(ctx, SuperstepIDKey, superstep)
	ctx = context.WithValue(ctx, NodeIDKey, task.Node.Name())
	ctx = context.WithValue(ctx, OrderKeyKey, orderKey)

	policy := task.Node.Policy()
	var retry *RetryPolicy
	var timeout time.Duration
	if policy != nil {
		retry = policy.RetryPolicy
		timeout = policy.Timeout
	}
	if retry == nil {
		retry = e.defaultPolicy
	}
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	maxAttempts := 1
	if retry != nil && retry.MaxAttempts > 0 {
		maxAttempts = retry.MaxAttempts
	}

	seed := e.rngSeed
	if seed == 0 {
		seed = hashSeed(runID)
	}
	rng := rand.New(rand.NewSource(seed + int64(superstep) + hashSeed(task.Node.Name())))

	var lastErr error
	var lastValue any
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx := context.WithValue(ctx, AttemptKey, attempt)
		attemptCtx = context.WithValue(attemptCtx, RNGKey, rng)
		value, err := executeNodeWithTimeout(attemptCtx, task.Node, task.Input, policy, timeout)
		if err == nil {
			if e.cache != nil && task.CacheKey != nil {
				ttl := time.Duration(0)
				if policy != nil && policy.Cache != nil {
					ttl = policy.Cache.TTL
				}
				e.cache.Put(*task.CacheKey, value, ttl)
			}
			return TaskOutcome{Task: task, Value: value}
		}
		lastErr, lastValue = err, value

		if IsInterrupt(err) {
			return TaskOutcome{Task: task, Value: value, Err: err}
		}
		var nodeErr *NodeError
		if ne, ok := err.(*NodeError); ok {
			nodeErr = ne
		}
		if nodeErr != nil && nodeErr.Kind == KindTerminal {
			break
		}
		if retry != nil && retry.Retryable != nil && !retry.Retryable(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		delay := computeBackoff(retry, attempt, rng)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return TaskOutcome{Task: task, Value: lastValue, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return TaskOutcome{Task: task, Value: lastValue, Err: lastErr}
}

func hashSeed(s string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return int64(h)
}
