package ratelimit

import (
	"context"
	"sync"
	"time"

	"market-pipeline/src/logger"
)

// -----------------------------------------------------------------------------
// RateLimiter gates outbound requests per upstream identifier inside fixed
// one-minute windows. Windows reset lazily: the first check after the reset
// time reinitializes the counter. State is per process, no cross-process
// coordination.
// -----------------------------------------------------------------------------

type window struct {
	count     int
	resetTime time.Time
}

type RateLimiter struct {
	limits  map[string]int // requests per minute per identifier
	windows map[string]*window
	Logger  *logger.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewRateLimiter(limits map[string]int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		windows: make(map[string]*window),
		Logger:  log,
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

// SetLimit configures (or reconfigures) the ceiling for an identifier.
func (rl *RateLimiter) SetLimit(id string, requestsPerMinute int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[id] = requestsPerMinute
}

// -----------------------------------------------------------------------------

// CheckRateLimit increments the identifier's counter and reports whether it is
// still under the ceiling. Identifiers with no configured limit are never
// limited. Never returns an error.
func (rl *RateLimiter) CheckRateLimit(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[id]
	if !ok {
		return true
	}

	now := rl.now()
	w, ok := rl.windows[id]
	if !ok || now.After(w.resetTime) {
		// Lazy reset: this call is the first of the new window
		rl.windows[id] = &window{count: 1, resetTime: now.Add(time.Minute)}
		return true
	}

	w.count++
	if w.count > limit {
		rl.Logger.Debug("Rate limit hit for '%s' (%d/%d)", id, w.count, limit)
		return false
	}
	return true
}

// -----------------------------------------------------------------------------

// WaitForRateLimit blocks until the identifier's current window resets, or the
// context is cancelled.
func (rl *RateLimiter) WaitForRateLimit(ctx context.Context, id string) error {
	rl.mu.Lock()
	var wait time.Duration
	if w, ok := rl.windows[id]; ok {
		wait = w.resetTime.Sub(rl.now())
	}
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// Remaining reports how many requests are left in the identifier's current
// window. Used by the status endpoint.
func (rl *RateLimiter) Remaining(id string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[id]
	if !ok {
		return -1
	}

	w, ok := rl.windows[id]
	if !ok || rl.now().After(w.resetTime) {
		return limit
	}
	if w.count >= limit {
		return 0
	}
	return limit - w.count
}
