package server

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Throttler
//
// Per-channel cooldown for price updates. Inside the cooldown a frame only
// passes when the price actually moved; unchanged repeats are suppressed.
// -----------------------------------------------------------------------------

type throttler struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]throttleEntry
}

type throttleEntry struct {
	sentAt time.Time
	price  float64
}

func newThrottler(cooldown time.Duration) *throttler {
	return &throttler{
		cooldown: cooldown,
		last:     make(map[string]throttleEntry),
	}
}

// -----------------------------------------------------------------------------

// allow reports whether a price update for the channel should go out now,
// and records it when it does.
func (t *throttler) allow(channel string, price float64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, seen := t.last[channel]
	if seen && now.Sub(entry.sentAt) < t.cooldown && entry.price == price {
		return false
	}
	t.last[channel] = throttleEntry{sentAt: now, price: price}
	return true
}
