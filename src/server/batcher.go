package server

import (
	"sync"
	"time"

	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Batcher
//
// Coalesces price updates per channel inside a short flush window. Only the
// newest frame per channel survives a window; stale intermediate prices are
// worthless to a client that will repaint anyway.
// -----------------------------------------------------------------------------

type batcher struct {
	hub      *Hub
	interval time.Duration

	mu      sync.Mutex
	pending map[string]models.MServerMessage

	stop chan struct{}
	done chan struct{}
}

func newBatcher(hub *Hub, interval time.Duration) *batcher {
	return &batcher{
		hub:      hub,
		interval: interval,
		pending:  make(map[string]models.MServerMessage),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// enqueue replaces any unflushed frame for the channel.
func (b *batcher) enqueue(channel string, message models.MServerMessage) {
	b.mu.Lock()
	b.pending[channel] = message
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (b *batcher) run() {
	ticker := time.NewTicker(b.interval)
	defer func() {
		ticker.Stop()
		close(b.done)
	}()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stop:
			b.flush()
			return
		}
	}
}

// flush drains the pending set and fans each frame out to its channel.
func (b *batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make(map[string]models.MServerMessage)
	b.mu.Unlock()

	for channel, message := range batch {
		b.hub.BroadcastToChannel(channel, message)
	}
}

func (b *batcher) shutdown() {
	close(b.stop)
	<-b.done
}
