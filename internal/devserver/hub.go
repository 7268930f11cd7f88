package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/ssrkit/internal/logging"
)

const (
	writeWait = 10 * time.Second
	// pingPeriod must stay below the browser's idle timeout.
	pingPeriod     = 50 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16
)

// Message types sent to the page.
const (
	MessageReload = "reload"
	MessageError  = "error"
)

// Message is the live-reload payload.
type Message struct {
	Type      string    `json:"type"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans reload notifications out to every connected page. Registration,
// removal and broadcast all run on the hub goroutine.
type Hub struct {
	logger         logging.Logger
	allowedOrigins map[string]bool

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// NewHub starts a hub accepting connections whose Origin host is one of
// allowedHosts (host:port).
func NewHub(logger logging.Logger, allowedHosts ...string) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:         logger.WithComponent("livereload"),
		allowedOrigins: make(map[string]bool, len(allowedHosts)),
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, 16),
		register:       make(chan *client, 8),
		unregister:     make(chan *websocket.Conn, 8),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, host := range allowedHosts {
		h.allowedOrigins[host] = true
	}
	go h.run()
	return h
}

// Count returns the number of connected pages.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every page. It never blocks the caller.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.ctx.Done():
	default:
		h.logger.Debug(h.ctx, "broadcast queue full, dropping message", "type", msg.Type)
	}
}

// Reload tells every page to reload, or shows err when the build failed.
func (h *Hub) Reload(err error) {
	if err != nil {
		h.Broadcast(Message{Type: MessageError, Error: err.Error()})
		return
	}
	h.Broadcast(Message{Type: MessageReload})
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.shutdown.Do(func() {
		h.cancel()
		h.mu.Lock()
		defer h.mu.Unlock()
		for conn, c := range h.clients {
			close(c.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(h.clients, conn)
		}
	})
}

// ServeHTTP upgrades the request to a live-reload socket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if !h.checkOrigin(r) {
		h.logger.Warn(r.Context(), nil, "websocket connection rejected", "origin", r.Header.Get("Origin"))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	go h.writePump(c)
	go h.readPump(c)

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) originPatterns() []string {
	patterns := make([]string, 0, len(h.allowedOrigins))
	for host := range h.allowedOrigins {
		patterns = append(patterns, host)
	}
	return patterns
}

// checkOrigin accepts same-host pages and the configured hosts.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host == r.Host || h.allowedOrigins[u.Host]
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "page connected", "pages", count)

		case conn := <-h.unregister:
			h.remove(conn)

		case payload := <-h.broadcast:
			h.mu.RLock()
			var slow []*websocket.Conn
			for conn, c := range h.clients {
				select {
				case c.send <- payload:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "page disconnected", "pages", count)
	}
}

// readPump discards page messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}
