package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes exponential delays with optional jitter.
type Backoff struct {
	policy Policy
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewBackoff(policy Policy) *Backoff {
	return &Backoff{
		policy: policy,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Calculate returns the delay before the given attempt, counting from 1.
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.policy.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	delay := float64(b.policy.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if b.policy.MaxDelay > 0 && delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}

	if b.policy.Jitter > 0 {
		b.mu.Lock()
		spread := (b.rnd.Float64()*2 - 1) * b.policy.Jitter
		b.mu.Unlock()
		delay += delay * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
