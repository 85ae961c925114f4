package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"
)

// -----------------------------------------------------------------------------
// Bulkhead
//
// Bounds concurrent execution to MaxConcurrent; excess calls queue FIFO up to
// MaxQueueSize, each deadlined at Timeout. Timed-out work is rejected, never
// forcibly cancelled: the underlying operation may complete invisibly and its
// slot is released only then.
// -----------------------------------------------------------------------------

type waiter struct {
	ready    chan struct{}
	enqueued time.Time
	granted  bool
	gone     bool
}

type BulkheadConfig struct {
	MaxConcurrent int
	MaxQueueSize  int
	Timeout       time.Duration
}

type Bulkhead struct {
	name   string
	config BulkheadConfig
	Logger *logger.Logger

	running int
	queue   []*waiter
	mu      sync.Mutex
}

// -----------------------------------------------------------------------------

func NewBulkhead(name string, cfg BulkheadConfig, log *logger.Logger) *Bulkhead {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Bulkhead{
		name:   name,
		config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Execute runs fn inside the bulkhead. Rejections: ErrQueueFull when the wait
// queue is at capacity, ErrQueueTimeout when the call waited longer than the
// timeout without starting, ErrExecutionTimeout when fn ran past the timeout.
func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.running < b.config.MaxConcurrent {
		b.running++
		b.mu.Unlock()
		return b.run(ctx, fn)
	}

	if len(b.queue) >= b.config.MaxQueueSize {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", b.name, helpers.ErrQueueFull)
	}

	w := &waiter{ready: make(chan struct{}), enqueued: time.Now()}
	b.queue = append(b.queue, w)
	b.mu.Unlock()

	timer := time.NewTimer(b.config.Timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return b.run(ctx, fn)

	case <-timer.C:
		b.abandon(w)
		return fmt.Errorf("%s: %w", b.name, helpers.ErrQueueTimeout)

	case <-ctx.Done():
		b.abandon(w)
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// run executes fn while holding a slot. The slot is released on true
// completion; Execute itself returns as soon as the timeout fires.
func (b *Bulkhead) run(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		b.release()
		done <- err
	}()

	timer := time.NewTimer(b.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		// Result abandoned, release happens when fn settles
		return fmt.Errorf("%s: %w", b.name, helpers.ErrExecutionTimeout)
	}
}

// -----------------------------------------------------------------------------

// abandon pulls a timed-out waiter back out of the queue. If the slot was
// already granted in the race, it is handed on.
func (b *Bulkhead) abandon(w *waiter) {
	b.mu.Lock()
	if w.granted {
		// Lost the race against dispatch: pass the slot along
		b.releaseLocked()
		b.mu.Unlock()
		return
	}
	w.gone = true
	for i, q := range b.queue {
		if q == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

// release frees one slot and dispatches the next eligible queued task, pruning
// expired waiters first.
func (b *Bulkhead) release() {
	b.mu.Lock()
	b.releaseLocked()
	b.mu.Unlock()
}

func (b *Bulkhead) releaseLocked() {
	now := time.Now()
	for len(b.queue) > 0 {
		w := b.queue[0]
		b.queue = b.queue[1:]
		if w.gone || now.Sub(w.enqueued) > b.config.Timeout {
			// Expired in queue; its own timer reports the rejection
			continue
		}
		w.granted = true
		close(w.ready)
		return // slot transfers to the dequeued waiter
	}
	b.running--
}

// -----------------------------------------------------------------------------

// Stats reports current occupancy for the status endpoint.
func (b *Bulkhead) Stats() (running, queued int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running, len(b.queue)
}
