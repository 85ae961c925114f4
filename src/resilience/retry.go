package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// -----------------------------------------------------------------------------
// Retry Policy
// -----------------------------------------------------------------------------

// RetryPolicy is stateless configuration; a single value can be shared across
// goroutines.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool

	// RetryCondition aborts retrying early when it returns false. Nil retries
	// all errors.
	RetryCondition func(error) bool
}

// -----------------------------------------------------------------------------

// Do runs fn up to MaxAttempts total attempts and returns the last observed
// error when they exhaust. Backoff before retry i is
// min(MaxDelay, BaseDelay * BackoffMultiplier^(i-1)), jittered by ±25% when
// enabled.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if p.RetryCondition != nil && !p.RetryCondition(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.delayFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// -----------------------------------------------------------------------------

// delayFor computes the backoff after the given 1-based failed attempt.
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	base := float64(p.BaseDelay)
	if base <= 0 {
		base = float64(time.Second)
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}

	d := base * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		// ±25%
		d = d * (0.75 + rand.Float64()*0.5)
	}
	return time.Duration(d)
}
