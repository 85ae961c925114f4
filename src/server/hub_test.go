package server

import (
	"testing"

	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *models.MConfig {
	return &models.MConfig{
		Name: "test",
		DataSource: models.MDataSourceConfig{
			Sources: []models.MSourceConfig{
				{Name: "cg", Type: "crypto", Symbols: []string{"BTC", "ETH"}},
				{Name: "st", Type: "stock", Symbols: []string{"MSTR"}},
			},
		},
		Broadcast: models.MBroadcastConfig{
			MaxConnections:    3,
			SendBufferSize:    4,
			HeartbeatSeconds:  30,
			InboundRatePerSec: 10,
			InboundBurst:      20,
		},
		Companies: []models.MCompanyConfig{
			{Ticker: "MSTR", CryptoSymbol: "BTC"},
		},
	}
}

func testHub() *Hub {
	return NewHub(testConfig(), logger.NewLogger("ERROR", "test"), nil)
}

// addClient registers a connectionless client, usable for hub-level tests.
func addClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := newClient(h, nil)
	require.NoError(t, h.Register(c))
	return c
}

// -----------------------------------------------------------------------------

func TestHubWhitelists(t *testing.T) {
	h := testHub()

	assert.ElementsMatch(t, []string{"crypto:BTC", "crypto:ETH", "stocks:MSTR"}, h.ValidChannels())
	assert.ElementsMatch(t,
		[]string{"general", "crypto", "stocks", "alerts", "admin", "company:MSTR"},
		h.ValidRooms())
}

func TestHubPoolFull(t *testing.T) {
	h := testHub()

	for i := 0; i < 3; i++ {
		addClient(t, h)
	}
	extra := newClient(h, nil)
	err := h.Register(extra)
	assert.ErrorIs(t, err, helpers.ErrPoolFull)
	assert.Equal(t, 3, h.ConnectionCount())
}

func TestHubSubscribeValidatesChannels(t *testing.T) {
	h := testHub()
	c := addClient(t, h)

	result := h.Subscribe(c, []string{"crypto:BTC", "crypto:DOGE", "stocks:MSTR"})

	assert.ElementsMatch(t, []string{"crypto:BTC", "stocks:MSTR"}, result.Subscribed)
	assert.Equal(t, []string{"crypto:DOGE"}, result.Invalid)
	assert.ElementsMatch(t, []string{"crypto:BTC", "stocks:MSTR"}, result.Channels)
	assert.Equal(t, 1, h.SubscriberCount("crypto:BTC"))
	assert.Equal(t, 0, h.SubscriberCount("crypto:DOGE"))
}

func TestHubSubscribeIdempotent(t *testing.T) {
	h := testHub()
	c := addClient(t, h)

	h.Subscribe(c, []string{"crypto:BTC"})
	result := h.Subscribe(c, []string{"crypto:BTC"})

	assert.Empty(t, result.Subscribed)
	assert.Equal(t, []string{"crypto:BTC"}, result.Channels)
	assert.Equal(t, 1, h.SubscriberCount("crypto:BTC"))
}

func TestHubUnsubscribe(t *testing.T) {
	h := testHub()
	c := addClient(t, h)

	h.Subscribe(c, []string{"crypto:BTC", "crypto:ETH"})
	result := h.Unsubscribe(c, []string{"crypto:BTC", "stocks:MSTR"})

	assert.Equal(t, []string{"crypto:BTC"}, result.Unsubscribed)
	assert.Equal(t, []string{"crypto:ETH"}, result.Channels)
	assert.Equal(t, 0, h.SubscriberCount("crypto:BTC"))
}

func TestHubRoomsValidation(t *testing.T) {
	h := testHub()
	c := addClient(t, h)

	result := h.JoinRooms(c, []string{"alerts", "company:MSTR", "company:FAKE", "vip"})

	assert.ElementsMatch(t, []string{"alerts", "company:MSTR"}, result.Joined)
	assert.ElementsMatch(t, []string{"company:FAKE", "vip"}, result.Invalid)
	assert.Equal(t, 1, h.RoomMemberCount("alerts"))

	left := h.LeaveRooms(c, []string{"alerts"})
	assert.Equal(t, []string{"alerts"}, left.Left)
	assert.Equal(t, 0, h.RoomMemberCount("alerts"))
}

// -----------------------------------------------------------------------------

func TestHubBroadcastReachesOnlySubscribers(t *testing.T) {
	h := testHub()
	subscribed1 := addClient(t, h)
	subscribed2 := addClient(t, h)
	bystander := addClient(t, h)

	h.Subscribe(subscribed1, []string{"crypto:BTC"})
	h.Subscribe(subscribed2, []string{"crypto:BTC"})
	h.Subscribe(bystander, []string{"crypto:ETH"})

	delivered := h.BroadcastToChannel("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))

	assert.Equal(t, 2, delivered)
	assert.Len(t, subscribed1.send, 1)
	assert.Len(t, subscribed2.send, 1)
	assert.Len(t, bystander.send, 0)
}

func TestHubBroadcastToRoom(t *testing.T) {
	h := testHub()
	member := addClient(t, h)
	outsider := addClient(t, h)

	h.JoinRooms(member, []string{"admin"})

	delivered := h.BroadcastToRoom("admin", newMessage(models.MsgHealthUpdate, nil))

	assert.Equal(t, 1, delivered)
	assert.Len(t, member.send, 1)
	assert.Len(t, outsider.send, 0)
}

func TestHubSlowClientDropped(t *testing.T) {
	h := testHub()
	slow := addClient(t, h)
	h.Subscribe(slow, []string{"crypto:BTC"})

	// Fill the send buffer (size 4), the next frame must evict the client
	for i := 0; i < 4; i++ {
		h.BroadcastToChannel("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))
	}
	assert.Equal(t, 1, h.ConnectionCount())

	h.BroadcastToChannel("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))

	assert.Equal(t, 0, h.ConnectionCount())
	assert.Equal(t, 0, h.SubscriberCount("crypto:BTC"))

	_, dropped := h.Counters()
	assert.Equal(t, int64(1), dropped)
}

func TestHubUnregisterCleansIndexes(t *testing.T) {
	h := testHub()
	c := addClient(t, h)
	h.Subscribe(c, []string{"crypto:BTC"})
	h.JoinRooms(c, []string{"alerts"})

	h.Unregister(c)
	h.Unregister(c) // second call is a no-op

	assert.Equal(t, 0, h.ConnectionCount())
	assert.Equal(t, 0, h.SubscriberCount("crypto:BTC"))
	assert.Equal(t, 0, h.RoomMemberCount("alerts"))

	// Broadcasting to the departed client's channel delivers nowhere
	delivered := h.BroadcastToChannel("crypto:BTC", newMessage(models.MsgPriceUpdate, nil))
	assert.Equal(t, 0, delivered)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "crypto:BTC", ChannelFor("crypto", "BTC"))
	assert.Equal(t, "stocks:MSTR", ChannelFor("stocks", "MSTR"))
}
