package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded wraps the last error once a policy is exhausted.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls how many times an operation is retried and how long to wait.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the fraction of each delay that is randomised, 0 to 1.
	Jitter float64
	// RetryableFunc overrides the default error classification.
	RetryableFunc func(error) bool
}

// DefaultPolicy suits calls to HTTP APIs: 3 retries from 1s doubling to 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

// Validate rejects nonsensical policies.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if p.MaxDelay > 0 && p.InitialDelay > p.MaxDelay {
		return fmt.Errorf("initial delay %s exceeds max delay %s", p.InitialDelay, p.MaxDelay)
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0,1], got %v", p.Jitter)
	}
	return nil
}
