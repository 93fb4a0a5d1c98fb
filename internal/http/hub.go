package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"line-monitor/internal/scheduler"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsSendBufSize  = 16
)

const (
	EventSnapshot = "snapshot"
	EventError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origin checks belong to the reverse proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HubMessage JSON envelope pushed to websocket clients
type HubMessage struct {
	Event string             `json:"event"`
	Data  *scheduler.Refresh `json:"data,omitempty"`
	Error string             `json:"error,omitempty"`
}

// Hub pushes every scheduler refresh to connected websocket clients.
// It is registered as a scheduler subscriber; slow clients whose buffer
// fills up are disconnected.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	last    []byte
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// OnRefresh broadcasts a snapshot event, or an error event when the run failed
func (h *Hub) OnRefresh(_ context.Context, r scheduler.Refresh) {
	msg := HubMessage{Event: EventSnapshot, Data: &r}
	if r.Err != nil {
		msg = HubMessage{Event: EventError, Error: r.Err.Error()}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode hub message", zap.Error(err))
		return
	}

	h.mu.Lock()
	if msg.Event == EventSnapshot {
		h.last = data
	}
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// ServeHTTP upgrades to websocket, sends the last snapshot and then keeps
// the client registered until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufSize),
	}
	last, ok := h.register(c)
	if !ok {
		conn.Close()
		return
	}
	defer h.unregister(c)

	if last != nil {
		h.deliver(c, last)
	}

	go c.writePump()
	c.readPump()
}

// Count number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client; later connections are refused
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	return nil
}

func (h *Hub) register(c *wsClient) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c] = struct{}{}
	return h.last, true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// deliver holds the read lock so a concurrent unregister cannot close send underneath us
func (h *Hub) deliver(c *wsClient, data []byte) {
	h.mu.RLock()
	if _, ok := h.clients[c]; !ok {
		h.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		h.mu.RUnlock()
	default:
		h.mu.RUnlock()
		h.logger.Warn("Dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
		h.unregister(c)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
