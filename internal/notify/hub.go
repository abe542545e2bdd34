// README: WebSocket hub streaming alarm notifications to the clients watching a session.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"arrivo/internal/types"
)

const (
	// writeWait bounds a single frame write to a peer.
	writeWait = 10 * time.Second
	// clientBufferSize is the send buffer per client; overflow drops messages.
	clientBufferSize = 16
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps the WebSocket clients of each session.
type Hub struct {
	mu      sync.RWMutex
	clients map[types.ID]map[*client]struct{}
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{clients: make(map[types.ID]map[*client]struct{}), log: log}
}

// Notify queues the notification for every client of its session. Slow
// clients miss messages instead of blocking the caller.
func (h *Hub) Notify(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[n.SessionID] {
		select {
		case c.send <- payload:
		default:
			h.log.WithField("session_id", n.SessionID).Warn("websocket client too slow, message dropped")
		}
	}
	return nil
}

// Serve registers conn for sessionID and pumps messages until the peer goes
// away or the hub is closed. It closes conn before returning.
func (h *Hub) Serve(sessionID types.ID, conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
		done: make(chan struct{}),
	}
	h.register(sessionID, c)
	defer func() {
		h.unregister(sessionID, c)
		_ = conn.Close()
	}()

	go func() {
		defer c.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Subscribers returns the number of clients watching sessionID.
func (h *Hub) Subscribers(sessionID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Disconnect drops every client of a session, e.g. when the session closes.
func (h *Hub) Disconnect(sessionID types.ID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		c.close()
	}
}

// Close drops all clients.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

func (h *Hub) register(sessionID types.ID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(sessionID types.ID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, sessionID)
	}
}
