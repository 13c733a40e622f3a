package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/topicnote/topicnote/pkg/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithCheckOrigin sets the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// Hub tracks websocket connections per user.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	closed  bool
	clients map[string]map[*client]struct{}
	wg      sync.WaitGroup
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

// NewHub returns an empty Hub.
func NewHub(log zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:     log.With().Str("component", "notify_hub").Logger(),
		now:     time.Now,
		clients: make(map[string]map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades an authenticated request and registers the connection.
// It must run behind the auth middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.log.Debug().Str("user", userID).Msg("websocket connected")

	if hello, err := Marshal(Event{Type: EventHello, At: h.now().Unix()}); err == nil {
		c.send <- hello
	}
	go c.writePump()
	go c.readPump()
}

// Publish sends an event to every connection of userID. Slow connections whose
// buffer is full miss the event.
func (h *Hub) Publish(userID string, e Event) {
	if e.At == 0 {
		e.At = h.now().Unix()
	}
	frame, err := Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- frame:
		default:
			h.log.Warn().Str("user", userID).Msg("websocket send buffer full, dropping event")
		}
	}
}

// TopicsChanged publishes an EventTopicsChanged.
func (h *Hub) TopicsChanged(userID string, ids []string, deleted bool) {
	h.Publish(userID, Event{Type: EventTopicsChanged, IDs: ids, Deleted: deleted})
}

// Connections returns the number of open connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects everyone and waits for the connection goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.shutdown()
	}
	h.wg.Wait()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set := h.clients[c.userID]
	if set == nil {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.clients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump only watches for pongs and the peer going away; clients never send
// anything meaningful.
func (c *client) readPump() {
	defer c.hub.wg.Done()
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Str("user", c.userID).Msg("websocket closed")
			}
			return
		}
	}
}

func (c *client) writePump() {
	defer c.hub.wg.Done()
	defer c.shutdown()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
