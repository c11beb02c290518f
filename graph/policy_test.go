package graph

import (
	"math/rand"
	"testing"
	"time"
)

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: 100 * time.Millisecond, BackoffFactor: 2.0}
	d1 := computeBackoff(policy, 1, nil)
	d2 := computeBackoff(policy, 2, nil)
	d3 := computeBackoff(policy, 3, nil)
	if d1 != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want 100ms", d1)
	}
	if d2 != 200*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want 200ms", d2)
	}
	if d3 != 400*time.Millisecond {
		t.Errorf("attempt 3 delay = %v, want 400ms", d3)
	}
}

func TestComputeBackoff_RespectsMaxDelayCap(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: time.Second, BackoffFactor: 10, MaxDelay: 2 * time.Second}
	d := computeBackoff(policy, 5, nil)
	if d != 2*time.Second {
		t.Errorf("delay = %v, want capped at 2s", d)
	}
}

func TestComputeBackoff_JitterAddsUpToQuarterDelay(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: time.Second, BackoffFactor: 1, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	d := computeBackoff(policy, 1, rng)
	if d < time.Second || d > time.Second+time.Second/4 {
		t.Errorf("jittered delay = %v, want in [1s, 1.25s]", d)
	}
}

func TestComputeBackoff_DefaultsFactorWhenUnset(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: 50 * time.Millisecond}
	d := computeBackoff(policy, 2, nil)
	if d != 100*time.Millisecond {
		t.Errorf("delay = %v, want 100ms (default factor 2.0)", d)
	}
}

func TestRetryPolicy_ValidateRejectsZeroMaxAttempts(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 0}
	if err := p.Validate(); err == nil {
		t.Error("expected error for MaxAttempts < 1")
	}
}

func TestRetryPolicy_ValidateRejectsMaxDelayBelowInitialDelay(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 100 * time.Millisecond}
	if err := p.Validate(); err == nil {
		t.Error("expected error when MaxDelay < InitialDelay")
	}
}

func TestRetryPolicy_ValidateAcceptsSaneConfig(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
