package graph

import (
	"context"
	"fmt"
	"time"
)

// getNodeTimeout determines the timeout duration for a node based on.
// precedence: NodePolicy.Timeout, then defaultTimeout, then 0 (unlimited).
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout wraps one task attempt with timeout enforcement,.
// returning a NodeError wrapping ErrNodeRetryable on deadline exceeded so the.
// Executor's retry policy applies uniformly to timeouts and ordinary errors.
func executeNodeWithTimeout(
	ctx context.Context,
	node Node,
	input any,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) (any, error) {
	timeout := getNodeTimeout(policy, defaultTimeout)

	if timeout == 0 {
		return node.Run(ctx, input)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := node.Run(timeoutCtx, input)
	if err != nil {
		return result, err
	}
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return result, Retryable(node.Name(), fmt.Sprintf("node %s exceeded timeout of %v", node.Name(), timeout), ErrNodeRetryable)
	}
	return result, nil
}
