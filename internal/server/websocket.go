package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 16
)

// WebSocket message types.
const (
	MsgAnalyze    = "analyze"
	MsgSubscribe  = "subscribe"
	MsgReport     = "report"
	MsgError      = "error"
	MsgSubscribed = "subscribed"
)

// WSMessage is the envelope of every WebSocket frame in both directions.
type WSMessage struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"`
	TenantID  string             `json:"tenantId,omitempty"`
	Request   *analytics.Request `json:"request,omitempty"`
	Report    *analytics.Report  `json:"report,omitempty"`
	Error     *APIError          `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected clients and pushes reports to tenant subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[*wsClient]struct{}), logger: logger}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.WebSocketConnections.Dec()
	}
}

// BroadcastReport sends report to every client subscribed to its tenant.
// Slow clients whose buffer is full miss the message.
func (h *Hub) BroadcastReport(report *analytics.Report) {
	msg := WSMessage{Type: MsgReport, TenantID: report.TenantID, Report: report, Timestamp: time.Now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(report.TenantID) {
			continue
		}
		if !c.trySend(msg) {
			h.logger.Warn("websocket client buffer full, dropping report",
				zap.String("client_id", c.id), zap.String("tenant_id", report.TenantID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.cancel()
	}
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan WSMessage
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tenants map[string]bool
}

func (c *wsClient) subscribed(tenant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenants[tenant]
}

func (c *wsClient) subscribe(tenant string) {
	c.mu.Lock()
	c.tenants[tenant] = true
	c.mu.Unlock()
}

func (c *wsClient) trySend(msg WSMessage) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// serveWS upgrades the connection. A tenantId query parameter subscribes the
// client to that tenant's reports right away.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	c := &wsClient{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan WSMessage, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		tenants: make(map[string]bool),
	}
	if tenant := r.URL.Query().Get("tenantId"); tenant != "" {
		c.subscribe(tenant)
	}
	s.hub.register(c)
	s.logger.Debug("websocket client connected", zap.String("client_id", c.id))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.unregister(c)
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *wsClient, msg WSMessage) {
	reply := func(m WSMessage) {
		m.ID = msg.ID
		m.Timestamp = time.Now().UTC()
		select {
		case c.send <- m:
		case <-c.ctx.Done():
		}
	}

	switch msg.Type {
	case MsgSubscribe:
		if msg.TenantID == "" {
			reply(WSMessage{Type: MsgError, Error: &APIError{Error: "tenantId is required", Code: ErrCodeMissingParameter}})
			return
		}
		c.subscribe(msg.TenantID)
		reply(WSMessage{Type: MsgSubscribed, TenantID: msg.TenantID})
	case MsgAnalyze:
		if msg.Request == nil {
			reply(WSMessage{Type: MsgError, Error: &APIError{Error: "request is required", Code: ErrCodeInvalidRequest}})
			return
		}
		report, err := s.runReport(c.ctx, *msg.Request)
		if err != nil {
			status, code := classify(err)
			text := err.Error()
			if status == http.StatusInternalServerError {
				text = "internal failure"
			}
			reply(WSMessage{Type: MsgError, TenantID: msg.Request.TenantID, Error: &APIError{
				Error: text, Code: code, Status: analytics.StatusOf(err),
			}})
			return
		}
		reply(WSMessage{Type: MsgReport, TenantID: report.TenantID, Report: report})
	default:
		reply(WSMessage{Type: MsgError, Error: &APIError{Error: "unknown message type " + msg.Type, Code: ErrCodeInvalidRequest}})
	}
}
