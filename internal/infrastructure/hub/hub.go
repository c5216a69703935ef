package hub

import (
	"sync"
	"time"

	"chatnet/internal/core/domain"

	"github.com/gorilla/websocket"
)

// client wraps one live stream. Writes go through a buffered send
// channel drained by writePump so concurrent deliveries never touch
// the connection directly.
type client struct {
	userID   domain.UserID
	username string
	conn     *websocket.Conn

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newClient(userID domain.UserID, username string, conn *websocket.Conn, sendBuffer int) *client {
	return &client{
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
	}
}

// enqueue hands a frame to the writePump. A send that races with a
// close, or hits a full buffer, is dropped; persistence is the system
// of record for DMs.
func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// close shuts the stream down exactly once. Safe to call from any
// goroutine; pending frames in the send buffer are abandoned.
func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			return
		}
	}
}

// Hub is the process-wide registry of live streams: user id to the one
// live stream bound to it. All map access happens under a single short
// critical section.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.UserID]*client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.UserID]*client),
	}
}

// register inserts a stream for the user and returns the displaced
// older stream, if any. The caller closes the displaced transport.
func (h *Hub) register(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	displaced := h.clients[c.userID]
	h.clients[c.userID] = c
	return displaced
}

// unregister removes the entry only if it still maps to this exact
// stream, so a late close of a displaced stream never erases its
// replacement. Reports whether an entry was removed.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

func (h *Hub) get(id domain.UserID) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// IsOnline reports whether a live stream exists for the user.
func (h *Hub) IsOnline(id domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// OnlineSet returns one atomic view of which users have live streams.
func (h *Hub) OnlineSet() map[domain.UserID]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	online := make(map[domain.UserID]bool, len(h.clients))
	for id := range h.clients {
		online[id] = true
	}
	return online
}

// ConnectionCount returns the number of live streams.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver enqueues a frame for one user. False when the user has no
// live stream or the stream is going away.
func (h *Hub) deliver(id domain.UserID, payload []byte) bool {
	c := h.get(id)
	if c == nil {
		return false
	}
	return c.enqueue(payload)
}

// broadcast enqueues a frame for every live stream.
func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}
