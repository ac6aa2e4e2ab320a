// Package broadcast fans session lifecycle events out to connected
// WebSocket observers. The hub holds one persistent subscription to the
// event bus; observer connections come and go underneath it.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"wabridge/pkg/events"
	"wabridge/pkg/session"
)

const clientSendBuffer = 64

// client wraps one observer connection. The send channel is never closed;
// done signals teardown, and writePump owns closing the connection, so
// concurrent senders can never race a close.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub is the observer fan-out. Delivery is at most once per observer per
// event; an observer that cannot keep up is disconnected rather than queued
// for.
type Hub struct {
	tracker *session.Tracker
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(tracker *session.Tracker, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}

	return &Hub{
		tracker: tracker,
		log:     log.With("component", "broadcast"),
		clients: make(map[*client]struct{}),
	}
}

// Run subscribes the hub to the event bus and forwards every lifecycle event
// to all connected observers until the context is canceled. This is the one
// persistent subscription; per-observer listeners are never registered.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) {
	sub, unsubscribe := bus.Subscribe(ctx, 0)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event, ok := <-sub:
			if !ok {
				h.closeAll()
				return
			}
			h.publish(framesFor(event)...)
		}
	}
}

// Register adopts a freshly upgraded observer connection. The new observer
// immediately sees a connecting notice and, when the session is already
// CONNECTED, the current status, so it does not wait for the next transition.
func (h *Hub) Register(conn *websocket.Conn) {
	c := newClient(conn)

	// Enqueue the join frames before the client is visible to publish, so a
	// concurrent broadcast can never outrun the replay.
	joinFrames := []Frame{{Event: frameMessage, Data: "Connecting..."}}
	if state := h.tracker.Current(); state.CanSend() {
		joinFrames = append(joinFrames,
			Frame{Event: frameReady, Data: "Whatsapp is ready!"},
			Frame{Event: frameMessage, Data: "Whatsapp is ready!"},
			Frame{Event: frameState, Data: string(state)},
		)
	}
	for _, frame := range joinFrames {
		h.sendTo(c, encodeFrame(frame))
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// The read pump only reaps closed connections; observers do not send.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(c)
				return
			}
		}
	}()

	h.log.Info("Observer connected", "observers", h.ClientCount())
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(frames ...Frame) {
	if len(frames) == 0 {
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, frame := range frames {
		data := encodeFrame(frame)
		for _, c := range clients {
			h.sendTo(c, data)
		}
	}
}

func (h *Hub) sendTo(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		h.log.Warn("Observer too slow, disconnecting")
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
