package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBulkhead(cfg BulkheadConfig) *Bulkhead {
	return NewBulkhead("test", cfg, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------

func TestBulkheadRejectsWhenQueueFull(t *testing.T) {
	b := testBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 1, Timeout: time.Second})
	ctx := context.Background()

	blocker := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Execute(ctx, func(ctx context.Context) error {
			close(started)
			<-blocker
			return nil
		})
	}()
	<-started

	// Second call occupies the single queue slot
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Execute(ctx, func(ctx context.Context) error { return nil })
	}()

	// Wait until it is actually queued
	require.Eventually(t, func() bool {
		_, queued := b.Stats()
		return queued == 1
	}, time.Second, 5*time.Millisecond)

	// Third call is rejected synchronously
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, helpers.ErrQueueFull)

	close(blocker)
	wg.Wait()
}

func TestBulkheadQueueTimeout(t *testing.T) {
	b := testBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 5, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	blocker := make(chan struct{})
	started := make(chan struct{})
	go b.Execute(ctx, func(ctx context.Context) error {
		close(started)
		<-blocker
		return nil
	})
	<-started

	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, helpers.ErrQueueTimeout)

	close(blocker)
}

func TestBulkheadExecutionTimeout(t *testing.T) {
	b := testBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 5, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	settled := make(chan struct{})
	err := b.Execute(ctx, func(ctx context.Context) error {
		defer close(settled)
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, helpers.ErrExecutionTimeout)

	// The slot is held until fn actually settles
	running, _ := b.Stats()
	assert.Equal(t, 1, running)

	<-settled
	require.Eventually(t, func() bool {
		running, _ := b.Stats()
		return running == 0
	}, time.Second, 5*time.Millisecond)
}

func TestBulkheadQueuedTaskRunsAfterRelease(t *testing.T) {
	b := testBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 5, Timeout: time.Second})
	ctx := context.Background()

	blocker := make(chan struct{})
	started := make(chan struct{})
	go b.Execute(ctx, func(ctx context.Context) error {
		close(started)
		<-blocker
		return nil
	})
	<-started

	ran := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := b.Execute(ctx, func(ctx context.Context) error {
			close(ran)
			return nil
		})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		_, queued := b.Stats()
		return queued == 1
	}, time.Second, 5*time.Millisecond)

	close(blocker)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran")
	}
	wg.Wait()
}

func TestBulkheadConcurrencyCeiling(t *testing.T) {
	b := testBulkhead(BulkheadConfig{MaxConcurrent: 3, MaxQueueSize: 10, Timeout: time.Second})
	ctx := context.Background()

	var mu sync.Mutex
	current, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Execute(ctx, func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 0)
}
