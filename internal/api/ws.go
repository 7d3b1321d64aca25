package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx/econcore/internal/events"
)

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Must be less than pongWait
	writeWait  = 10 * time.Second
	maxMsgSize = 4 * 1024
	sendBuffer = 256
)

// Hub fans bus events out to WebSocket clients. It is a bus subscriber;
// every write to a connection goes through the client's send channel and
// its single write pump.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	kinds map[events.Kind]bool // empty means every kind
	done  chan struct{}
	once  sync.Once
}

// NewHub accepts connections from allowedOrigins. An empty list accepts
// any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[*wsClient]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     buildCheckOrigin(allowedOrigins),
	}
	return h
}

func buildCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	slog.Info("[WebSocket] origin allowlist active", "count", len(allowed))
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		slog.Info("[WebSocket] rejected connection", "origin", origin)
		return false
	}
}

// ServeWS upgrades the request. ?kinds=A,B limits the stream to those kinds.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	kinds := make(map[events.Kind]bool)
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			kind := events.Kind(strings.TrimSpace(k))
			if !kind.Valid() {
				writeError(w, http.StatusBadRequest, "unknown event kind "+string(kind))
				return
			}
			kinds[kind] = true
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[WebSocket] upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		kinds: kinds,
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("[WebSocket] client connected", "remote", r.RemoteAddr, "kinds", len(kinds))
	go c.writePump()
	go c.readPump()
}

// Handle is a bus Handler. Slow clients drop events rather than block the
// bus.
func (h *Hub) Handle(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if len(c.kinds) > 0 && !c.kinds[ev.Kind] {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("[WebSocket] send buffer full, dropping event", "kind", ev.Kind, "event_id", ev.ID)
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.remove(c)
		c.conn.Close()
	})
}

// writePump is the only goroutine writing to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("[WebSocket] write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump only services pongs and close frames; clients do not send data.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[WebSocket] read error", "error", err)
			}
			return
		}
	}
}
