package server

import (
	"sort"
	"strings"
	"sync"

	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"
	"market-pipeline/src/metrics"
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Hub
//
// Owns every live client and the channel/room membership indexes. Membership
// only changes under the hub lock, so a broadcast snapshot and the client's
// own subscription set can never disagree. Whitelists are fixed at
// construction from the configured sources and companies.
// -----------------------------------------------------------------------------

// Standing rooms. Company rooms are derived from config.
const (
	RoomGeneral = "general"
	RoomCrypto  = "crypto"
	RoomStocks  = "stocks"
	RoomAlerts  = "alerts"
	RoomAdmin   = "admin"
)

type Hub struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	mu           sync.RWMutex
	clients      map[*Client]struct{}
	channelIndex map[string]map[*Client]struct{}
	roomIndex    map[string]map[*Client]struct{}

	validChannels map[string]struct{}
	validRooms    map[string]struct{}

	messagesSent       int64
	slowClientsDropped int64
}

// -----------------------------------------------------------------------------

func NewHub(cfg *models.MConfig, log *logger.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		Config:        cfg,
		Logger:        log,
		Metrics:       m,
		clients:       make(map[*Client]struct{}),
		channelIndex:  make(map[string]map[*Client]struct{}),
		roomIndex:     make(map[string]map[*Client]struct{}),
		validChannels: make(map[string]struct{}),
		validRooms:    make(map[string]struct{}),
	}

	for _, source := range cfg.DataSource.Sources {
		prefix := "crypto"
		if source.Type == "stock" {
			prefix = "stocks"
		}
		for _, symbol := range source.Symbols {
			h.validChannels[prefix+":"+symbol] = struct{}{}
		}
	}

	for _, room := range []string{RoomGeneral, RoomCrypto, RoomStocks, RoomAlerts, RoomAdmin} {
		h.validRooms[room] = struct{}{}
	}
	for _, company := range cfg.Companies {
		h.validRooms["company:"+company.Ticker] = struct{}{}
	}

	return h
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// Register admits a client into the pool. A full pool rejects the connection
// so existing clients keep their service level.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.Config.Broadcast.MaxConnections {
		return helpers.ErrPoolFull
	}
	h.clients[client] = struct{}{}
	if h.Metrics != nil {
		h.Metrics.ActiveConnections.Set(float64(len(h.clients)))
	}
	return nil
}

// -----------------------------------------------------------------------------

// Unregister removes a client from the pool and from every index. Safe to
// call more than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for channel := range client.channels {
		h.dropFromIndex(h.channelIndex, channel, client)
	}
	for room := range client.rooms {
		h.dropFromIndex(h.roomIndex, room, client)
	}
	client.closeSend()
	if h.Metrics != nil {
		h.Metrics.ActiveConnections.Set(float64(len(h.clients)))
	}
	h.Logger.Debug("Client %s unregistered (%d remaining)", client.ID, len(h.clients))
}

func (h *Hub) dropFromIndex(index map[string]map[*Client]struct{}, key string, client *Client) {
	if set, ok := index[key]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe adds the valid channels to the client, reporting invalid names
// back instead of failing the whole request.
func (h *Hub) Subscribe(client *Client, channels []string) models.MSubscriptionResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result models.MSubscriptionResult
	for _, channel := range channels {
		if _, ok := h.validChannels[channel]; !ok {
			result.Invalid = append(result.Invalid, channel)
			continue
		}
		if _, already := client.channels[channel]; already {
			continue
		}
		client.channels[channel] = struct{}{}
		if h.channelIndex[channel] == nil {
			h.channelIndex[channel] = make(map[*Client]struct{})
		}
		h.channelIndex[channel][client] = struct{}{}
		result.Subscribed = append(result.Subscribed, channel)
	}
	result.Channels = setToSorted(client.channels)
	return result
}

// -----------------------------------------------------------------------------

func (h *Hub) Unsubscribe(client *Client, channels []string) models.MSubscriptionResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result models.MSubscriptionResult
	for _, channel := range channels {
		if _, ok := client.channels[channel]; !ok {
			continue
		}
		delete(client.channels, channel)
		h.dropFromIndex(h.channelIndex, channel, client)
		result.Unsubscribed = append(result.Unsubscribed, channel)
	}
	result.Channels = setToSorted(client.channels)
	return result
}

// -----------------------------------------------------------------------------

func (h *Hub) JoinRooms(client *Client, rooms []string) models.MRoomResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result models.MRoomResult
	for _, room := range rooms {
		if !h.roomValid(room) {
			result.Invalid = append(result.Invalid, room)
			continue
		}
		if _, already := client.rooms[room]; already {
			continue
		}
		client.rooms[room] = struct{}{}
		if h.roomIndex[room] == nil {
			h.roomIndex[room] = make(map[*Client]struct{})
		}
		h.roomIndex[room][client] = struct{}{}
		result.Joined = append(result.Joined, room)
	}
	result.Rooms = setToSorted(client.rooms)
	return result
}

// -----------------------------------------------------------------------------

func (h *Hub) LeaveRooms(client *Client, rooms []string) models.MRoomResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result models.MRoomResult
	for _, room := range rooms {
		if _, ok := client.rooms[room]; !ok {
			continue
		}
		delete(client.rooms, room)
		h.dropFromIndex(h.roomIndex, room, client)
		result.Left = append(result.Left, room)
	}
	result.Rooms = setToSorted(client.rooms)
	return result
}

func (h *Hub) roomValid(room string) bool {
	_, ok := h.validRooms[room]
	return ok
}

// -----------------------------------------------------------------------------
// Broadcasting
// -----------------------------------------------------------------------------

// BroadcastToChannel delivers to every subscriber of one channel. Slow
// clients are disconnected rather than allowed to stall the rest.
func (h *Hub) BroadcastToChannel(channel string, message models.MServerMessage) int {
	return h.fanOut(h.snapshot(h.channelIndex, channel), message)
}

// BroadcastToRoom delivers to every member of one room.
func (h *Hub) BroadcastToRoom(room string, message models.MServerMessage) int {
	return h.fanOut(h.snapshot(h.roomIndex, room), message)
}

func (h *Hub) snapshot(index map[string]map[*Client]struct{}, key string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := index[key]
	targets := make([]*Client, 0, len(set))
	for client := range set {
		targets = append(targets, client)
	}
	return targets
}

func (h *Hub) fanOut(targets []*Client, message models.MServerMessage) int {
	delivered := 0
	for _, client := range targets {
		if client.deliver(message) {
			delivered++
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
			if h.Metrics != nil {
				h.Metrics.MessagesSent.Inc()
			}
		} else {
			// Send buffer full: the client cannot keep up
			h.mu.Lock()
			h.slowClientsDropped++
			h.mu.Unlock()
			if h.Metrics != nil {
				h.Metrics.SlowClientsDropped.Inc()
			}
			h.Logger.Warning("Dropping slow client %s", client.ID)
			h.Unregister(client)
			client.closeConn()
		}
	}
	return delivered
}

// -----------------------------------------------------------------------------
// Introspection
// -----------------------------------------------------------------------------

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Counters() (sent, dropped int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messagesSent, h.slowClientsDropped
}

// ValidChannels lists the subscribable channels, sorted.
func (h *Hub) ValidChannels() []string {
	return setToSorted(h.validChannels)
}

// ValidRooms lists the joinable rooms, sorted.
func (h *Hub) ValidRooms() []string {
	return setToSorted(h.validRooms)
}

// SubscriberCount reports how many clients hold a channel subscription.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channelIndex[channel])
}

// RoomMemberCount reports how many clients are in a room.
func (h *Hub) RoomMemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomIndex[room])
}

// -----------------------------------------------------------------------------

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ChannelFor maps an asset class and symbol to its channel name.
func ChannelFor(assetClass, symbol string) string {
	return strings.ToLower(assetClass) + ":" + symbol
}
