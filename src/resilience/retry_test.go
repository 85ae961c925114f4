package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}

	calls := 0
	start := time.Now()
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errUpstream
	})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 3, calls)
	// Backoff between attempts: 100ms then 200ms
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRetrySucceedsMidway(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, BackoffMultiplier: 2}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryConditionStopsEarly(t *testing.T) {
	fatal := errors.New("not retryable")
	policy := RetryPolicy{
		MaxAttempts:       5,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 2,
		RetryCondition:    func(err error) bool { return !errors.Is(err, fatal) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryMaxDelayCaps(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       10,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 10,
	}

	// Attempt 3 would be 1s uncapped
	assert.Equal(t, 20*time.Millisecond, policy.delayFor(3))
}

func TestRetryJitterBounds(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            true,
	}

	for i := 0; i < 50; i++ {
		d := policy.delayFor(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryContextCancelDuringBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, BackoffMultiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return errUpstream
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
