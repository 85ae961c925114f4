package server

import (
	"testing"
	"time"

	"market-pipeline/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherCoalescesPerChannel(t *testing.T) {
	h := testHub()
	c := addClient(t, h)
	h.Subscribe(c, []string{"crypto:BTC"})

	b := newBatcher(h, time.Hour) // flush manually

	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, models.MPriceUpdate{Price: 1}))
	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, models.MPriceUpdate{Price: 2}))
	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, models.MPriceUpdate{Price: 3}))

	b.flush()

	// Only the newest frame survived the window
	require.Len(t, c.send, 1)
	got := <-c.send
	assert.Equal(t, 3.0, got.Data.(models.MPriceUpdate).Price)

	// Nothing pending after a flush
	b.flush()
	assert.Len(t, c.send, 0)
}

func TestBatcherIndependentChannels(t *testing.T) {
	h := testHub()
	c := addClient(t, h)
	h.Subscribe(c, []string{"crypto:BTC", "crypto:ETH"})

	b := newBatcher(h, time.Hour)
	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, models.MPriceUpdate{Symbol: "BTC"}))
	b.enqueue("crypto:ETH", newMessage(models.MsgPriceUpdate, models.MPriceUpdate{Symbol: "ETH"}))
	b.flush()

	assert.Len(t, c.send, 2)
}

func TestBatcherFlushesOnShutdown(t *testing.T) {
	h := testHub()
	c := addClient(t, h)
	h.Subscribe(c, []string{"crypto:BTC"})

	b := newBatcher(h, time.Hour)
	go b.run()
	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))
	b.shutdown()

	assert.Len(t, c.send, 1)
}

func TestBatcherPeriodicFlush(t *testing.T) {
	h := testHub()
	c := addClient(t, h)
	h.Subscribe(c, []string{"crypto:BTC"})

	b := newBatcher(h, 10*time.Millisecond)
	go b.run()
	defer b.shutdown()

	b.enqueue("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))

	require.Eventually(t, func() bool {
		return len(c.send) == 1
	}, time.Second, 5*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestThrottlerSuppressesUnchangedPrice(t *testing.T) {
	th := newThrottler(time.Second)
	now := time.Now()

	assert.True(t, th.allow("crypto:BTC", 100, now))
	assert.False(t, th.allow("crypto:BTC", 100, now.Add(100*time.Millisecond)))
	assert.False(t, th.allow("crypto:BTC", 100, now.Add(900*time.Millisecond)))
}

func TestThrottlerPassesChangedPrice(t *testing.T) {
	th := newThrottler(time.Second)
	now := time.Now()

	assert.True(t, th.allow("crypto:BTC", 100, now))
	// Inside the cooldown but the price moved
	assert.True(t, th.allow("crypto:BTC", 101, now.Add(100*time.Millisecond)))
}

func TestThrottlerCooldownExpiry(t *testing.T) {
	th := newThrottler(time.Second)
	now := time.Now()

	assert.True(t, th.allow("crypto:BTC", 100, now))
	assert.True(t, th.allow("crypto:BTC", 100, now.Add(1100*time.Millisecond)))
}

func TestThrottlerChannelsIndependent(t *testing.T) {
	th := newThrottler(time.Second)
	now := time.Now()

	assert.True(t, th.allow("crypto:BTC", 100, now))
	assert.True(t, th.allow("crypto:ETH", 100, now))
}
