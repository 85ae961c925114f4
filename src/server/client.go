package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"market-pipeline/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Client
//
// One websocket connection. readPump is the watchdog (pong deadline, inbound
// rate limit), writePump the only writer. Membership sets are owned by the
// hub and only touched under the hub lock.
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	maxMessageSize = 4096
)

type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan models.MServerMessage

	channels map[string]struct{}
	rooms    map[string]struct{}

	limiter     *rate.Limiter
	connectedAt time.Time

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64

	sendMu     sync.Mutex
	sendClosed bool
	connOnce   sync.Once
}

// -----------------------------------------------------------------------------

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	cfg := hub.Config.Broadcast
	return &Client{
		ID:          uuid.NewString(),
		hub:         hub,
		conn:        conn,
		send:        make(chan models.MServerMessage, cfg.SendBufferSize),
		channels:    make(map[string]struct{}),
		rooms:       make(map[string]struct{}),
		limiter:     rate.NewLimiter(rate.Limit(cfg.InboundRatePerSec), cfg.InboundBurst),
		connectedAt: time.Now(),
	}
}

// -----------------------------------------------------------------------------

// deliver queues a frame without blocking. False means the buffer was full.
// A client whose send side is already closed is silently skipped.
func (c *Client) deliver(message models.MServerMessage) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return true
	}
	select {
	case c.send <- message:
		c.messagesSent.Add(1)
		return true
	default:
		return false
	}
}

// closeSend is called by the hub, under the hub lock, exactly once per
// unregistration.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) closeConn() {
	c.connOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// -----------------------------------------------------------------------------
// readPump
// -----------------------------------------------------------------------------

func (c *Client) readPump(pongWait time.Duration) {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Debug("Client %s read error: %v", c.ID, err)
			}
			return
		}

		c.messagesReceived.Add(1)
		if !c.limiter.Allow() {
			c.reply(models.MsgError, models.MErrorPayload{Message: "rate limit exceeded, message dropped"})
			continue
		}
		c.handleMessage(raw)
	}
}

// -----------------------------------------------------------------------------
// writePump
// -----------------------------------------------------------------------------

func (c *Client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Debug("Client %s write error: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Inbound dispatch
// -----------------------------------------------------------------------------

func (c *Client) handleMessage(raw []byte) {
	var msg models.MClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(models.MsgError, models.MErrorPayload{Message: "malformed message"})
		return
	}

	switch msg.Type {
	case models.MsgSubscribe:
		c.reply(models.MsgSubscriptionResult, c.hub.Subscribe(c, msg.Channels))

	case models.MsgUnsubscribe:
		c.reply(models.MsgSubscriptionResult, c.hub.Unsubscribe(c, msg.Channels))

	case models.MsgJoinRoom:
		c.reply(models.MsgRoomResult, c.hub.JoinRooms(c, msg.Rooms))

	case models.MsgLeaveRoom:
		c.reply(models.MsgRoomResult, c.hub.LeaveRooms(c, msg.Rooms))

	case models.MsgPing:
		c.reply(models.MsgPong, nil)

	case models.MsgGetSubscriptions:
		c.hub.mu.RLock()
		payload := models.MSubscriptionsPayload{
			Channels: setToSorted(c.channels),
			Rooms:    setToSorted(c.rooms),
		}
		c.hub.mu.RUnlock()
		c.reply(models.MsgSubscriptions, payload)

	case models.MsgGetStats:
		c.hub.mu.RLock()
		channels, rooms := len(c.channels), len(c.rooms)
		c.hub.mu.RUnlock()
		c.reply(models.MsgConnectionStatus, models.MConnectionStats{
			ConnectionID:     c.ID,
			ConnectedAtUnix:  c.connectedAt.Unix(),
			MessagesSent:     c.messagesSent.Load(),
			MessagesReceived: c.messagesReceived.Load(),
			Channels:         channels,
			Rooms:            rooms,
		})

	default:
		c.reply(models.MsgError, models.MErrorPayload{Message: "unknown message type '" + msg.Type + "'"})
	}
}

// -----------------------------------------------------------------------------

func (c *Client) reply(msgType string, data interface{}) {
	c.deliver(newMessage(msgType, data))
}

func newMessage(msgType string, data interface{}) models.MServerMessage {
	return models.MServerMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}
