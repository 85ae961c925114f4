package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/metrics"
	"market-pipeline/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// BroadcastServer
//
// HTTP + websocket front of the pipeline. Owns the hub, the per-channel
// batcher and the price throttler; the orchestrator plugs in through the
// callback fields before Start.
// -----------------------------------------------------------------------------

type BroadcastServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	hub       *Hub
	batcher   *batcher
	throttler *throttler
	engine    *gin.Engine
	httpSrv   *http.Server

	// Wired by the orchestrator before Start
	StatusFunc   func() models.MPipelineStatus
	MetricsFunc  func() models.MPipelineMetrics
	HealthFunc   func() models.MHealthUpdatePayload
	RefreshFunc  func(types []string) error
	ClearCacheFn func(pattern string) (int, error)

	pingPeriod time.Duration
	pongWait   time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func NewBroadcastServer(cfg *models.MConfig, log *logger.Logger, m *metrics.Metrics) *BroadcastServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := NewHub(cfg, log, m)
	pingPeriod := time.Duration(cfg.Broadcast.HeartbeatSeconds) * time.Second

	s := &BroadcastServer{
		Config:     cfg,
		Logger:     log,
		Metrics:    m,
		hub:        hub,
		batcher:    newBatcher(hub, time.Duration(cfg.Broadcast.BatchFlushMs)*time.Millisecond),
		throttler:  newThrottler(time.Duration(cfg.Broadcast.ThrottleCooldownMs) * time.Millisecond),
		engine:     gin.Default(),
		pingPeriod: pingPeriod,
		pongWait:   2 * pingPeriod,
	}

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *BroadcastServer) setupRoutes() {
	s.engine.GET("/ws", s.handleWebSocket)

	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/status", s.getStatus)
	s.engine.GET("/api/metrics", s.getMetrics)
	s.engine.POST("/api/refresh", s.postRefresh)
	s.engine.POST("/api/cache/clear", s.postCacheClear)

	if s.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (s *BroadcastServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting broadcast server on %s", addr)

	// The batcher's stop channel is one-shot, a restart needs a fresh one
	s.batcher = newBatcher(s.hub, time.Duration(s.Config.Broadcast.BatchFlushMs)*time.Millisecond)
	go s.batcher.run()

	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) Stop() error {
	s.batcher.shutdown()

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) ConnectionCount() int {
	return s.hub.ConnectionCount()
}

// Hub exposes the hub for status aggregation.
func (s *BroadcastServer) Hub() *Hub {
	return s.hub
}

// -----------------------------------------------------------------------------
// Event publishing
// -----------------------------------------------------------------------------

// PublishEvent fans a pipeline event out to its channel and rooms. Price
// updates flow through throttle and batch; significant changes bypass both.
func (s *BroadcastServer) PublishEvent(event models.MPipelineEvent) {
	channel := ChannelFor(event.AssetClass, event.Symbol)
	price := eventPrice(event)

	switch event.Kind {
	case models.EventDataProcessed:
		update := models.MPriceUpdate{
			Channel: channel,
			Symbol:  event.Symbol,
			Price:   price,
			Crypto:  event.Crypto,
			Stock:   event.Stock,
			Metrics: event.Metrics,
		}
		if s.throttler.allow(channel, price, time.Now()) {
			s.batcher.enqueue(channel, newMessage(models.MsgPriceUpdate, update))
		}

		// Asset-class room gets the full record immediately
		room := RoomCrypto
		if event.AssetClass == "stocks" {
			room = RoomStocks
		}
		s.hub.BroadcastToRoom(room, newMessage(models.MsgDataUpdate, update))
		if event.Metrics != nil {
			s.hub.BroadcastToRoom("company:"+event.Metrics.Ticker, newMessage(models.MsgDataUpdate, update))
		}

	case models.EventSignificantChange:
		payload := models.MSignificantChangePayload{
			Channel: channel,
			Symbol:  event.Symbol,
			Changes: event.Changes,
			Price:   price,
		}
		message := newMessage(models.MsgSignificantChange, payload)
		s.hub.BroadcastToChannel(channel, message)
		s.hub.BroadcastToRoom(RoomAlerts, message)

	default:
		s.Logger.Warning("Unknown event kind '%s' for %s", event.Kind, event.Symbol)
	}
}

// -----------------------------------------------------------------------------

// PublishHealth pushes a health frame to the admin room.
func (s *BroadcastServer) PublishHealth(payload models.MHealthUpdatePayload) {
	s.hub.BroadcastToRoom(RoomAdmin, newMessage(models.MsgHealthUpdate, payload))
}

func eventPrice(event models.MPipelineEvent) float64 {
	if event.Crypto != nil {
		return event.Crypto.Price
	}
	if event.Stock != nil {
		return event.Stock.Price
	}
	return 0
}

// -----------------------------------------------------------------------------
// WebSocket handler
// -----------------------------------------------------------------------------

func (s *BroadcastServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("Websocket upgrade failed: %v", err)
		return
	}

	client := newClient(s.hub, conn)
	if err := s.hub.Register(client); err != nil {
		s.Logger.Warning("Rejecting connection: %v", err)
		conn.WriteJSON(newMessage(models.MsgError, models.MErrorPayload{Message: "connection pool full"}))
		conn.Close()
		return
	}

	go client.writePump(s.pingPeriod)
	go client.readPump(s.pongWait)

	client.deliver(newMessage(models.MsgConnectionStatus, models.MConnectionStatus{
		ConnectionID:  client.ID,
		Status:        "connected",
		ValidChannels: s.hub.ValidChannels(),
		ValidRooms:    s.hub.ValidRooms(),
	}))

	s.Logger.Info("Client %s connected (%d total)", client.ID, s.hub.ConnectionCount())
}

// -----------------------------------------------------------------------------
// REST handlers
// -----------------------------------------------------------------------------

func (s *BroadcastServer) getHealth(c *gin.Context) {
	if s.HealthFunc == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": s.hub.ConnectionCount()})
		return
	}

	payload := s.HealthFunc()
	code := http.StatusOK
	if payload.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, payload)
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) getStatus(c *gin.Context) {
	if s.StatusFunc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.StatusFunc())
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) getMetrics(c *gin.Context) {
	if s.MetricsFunc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.MetricsFunc())
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) postRefresh(c *gin.Context) {
	if s.RefreshFunc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh unavailable"})
		return
	}

	var body struct {
		Types []string `json:"types"`
	}
	// Empty body means refresh everything
	_ = c.ShouldBindJSON(&body)

	if err := s.RefreshFunc(body.Types); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refresh triggered", "types": body.Types})
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) postCacheClear(c *gin.Context) {
	if s.ClearCacheFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}

	var body struct {
		Pattern string `json:"pattern"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Pattern == "" {
		body.Pattern = ".*"
	}

	removed, err := s.ClearCacheFn(body.Pattern)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cache cleared", "removed": removed})
}
