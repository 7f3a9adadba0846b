package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyErr struct{ retry bool }

func (e flakyErr) Error() string     { return "flaky" }
func (e flakyErr) IsRetryable() bool { return e.retry }

func fastPolicy() Policy {
	return Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetrier_Do(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(), zap.NewNop(), func() error {
			calls++
			if calls < 3 {
				return flakyErr{retry: true}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(), zap.NewNop(), func() error {
			calls++
			return flakyErr{retry: false}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.False(t, errors.Is(err, ErrMaxRetriesExceeded))
	})

	t.Run("wraps last error when exhausted", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(), zap.NewNop(), func() error {
			calls++
			return flakyErr{retry: true}
		})
		require.Error(t, err)
		assert.Equal(t, 4, calls)
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		var fe flakyErr
		assert.ErrorAs(t, err, &fe)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Do(ctx, fastPolicy(), zap.NewNop(), func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoff_Calculate(t *testing.T) {
	b := NewBackoff(Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, b.Calculate(1))
	assert.Equal(t, 200*time.Millisecond, b.Calculate(2))
	assert.Equal(t, 400*time.Millisecond, b.Calculate(3))
	assert.Equal(t, time.Second, b.Calculate(10))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxRetries: -1}.Validate())
	assert.Error(t, Policy{InitialDelay: 2 * time.Second, MaxDelay: time.Second}.Validate())
	assert.Error(t, Policy{Jitter: 1.5}.Validate())
}
