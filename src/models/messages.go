package models

// -----------------------------------------------------------------------------
// Wire Protocol
// -----------------------------------------------------------------------------

// Client -> server message types
const (
	MsgSubscribe        = "subscribe"
	MsgUnsubscribe      = "unsubscribe"
	MsgJoinRoom         = "join_room"
	MsgLeaveRoom        = "leave_room"
	MsgPing             = "ping"
	MsgGetSubscriptions = "get_subscriptions"
	MsgGetStats         = "get_stats"
)

// Server -> client message types
const (
	MsgConnectionStatus   = "connection_status"
	MsgSubscriptionResult = "subscription_result"
	MsgRoomResult         = "room_result"
	MsgPriceUpdate        = "price_update"
	MsgDataUpdate         = "data_update"
	MsgSignificantChange  = "significant_change"
	MsgHealthUpdate       = "health_update"
	MsgSubscriptions      = "subscriptions"
	MsgPong               = "pong"
	MsgError              = "error"
)

// -----------------------------------------------------------------------------

// MClientMessage is the inbound frame shape.
type MClientMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

// MServerMessage is the outbound envelope. Data holds exactly one of the
// payload structs below, selected by Type.
type MServerMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

type MConnectionStatus struct {
	ConnectionID  string   `json:"connection_id"`
	Status        string   `json:"status"`
	ValidChannels []string `json:"valid_channels"`
	ValidRooms    []string `json:"valid_rooms"`
}

type MSubscriptionResult struct {
	Subscribed   []string `json:"subscribed,omitempty"`
	Unsubscribed []string `json:"unsubscribed,omitempty"`
	Invalid      []string `json:"invalid,omitempty"`
	Channels     []string `json:"channels"`
}

type MRoomResult struct {
	Joined  []string `json:"joined,omitempty"`
	Left    []string `json:"left,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Rooms   []string `json:"rooms"`
}

type MPriceUpdate struct {
	Channel string           `json:"channel"`
	Symbol  string           `json:"symbol"`
	Price   float64          `json:"price"`
	Crypto  *MCryptoPrice    `json:"crypto,omitempty"`
	Stock   *MStockQuote     `json:"stock,omitempty"`
	Metrics *MDerivedMetrics `json:"metrics,omitempty"`
}

type MSignificantChangePayload struct {
	Channel string         `json:"channel"`
	Symbol  string         `json:"symbol"`
	Changes []MFieldChange `json:"changes"`
	Price   float64        `json:"price"`
}

type MHealthUpdatePayload struct {
	Status string               `json:"status"`
	Checks []MHealthCheckResult `json:"checks,omitempty"`
	Detail string               `json:"detail,omitempty"`
}

type MSubscriptionsPayload struct {
	Channels []string `json:"channels"`
	Rooms    []string `json:"rooms"`
}

type MConnectionStats struct {
	ConnectionID     string `json:"connection_id"`
	ConnectedAtUnix  int64  `json:"connected_at"`
	MessagesSent     int64  `json:"messages_sent"`
	MessagesReceived int64  `json:"messages_received"`
	Channels         int    `json:"channels"`
	Rooms            int    `json:"rooms"`
}

type MErrorPayload struct {
	Message string `json:"message"`
}
