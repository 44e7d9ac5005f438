// Package hub fans events out to connected operator sockets: processor
// presence, new evidence, and departures. Connections register through the
// run loop; a slow client is dropped rather than allowed to stall the fanout.
package hub

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gidence/scm/internal/metrics"
)

// Presence supplies the live-processor snapshot sent to a client when it
// identifies itself.
type Presence interface {
	Snapshot() map[string]int64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the client set and serializes membership changes through its run
// loop.
type Hub struct {
	presence Presence

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]bool

	logger *log.Logger
}

// New builds a hub over the given presence source.
func New(presence Presence) *Hub {
	return &Hub{
		presence:   presence,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]bool),
		logger:     log.New(log.Writer(), "[HUB] ", log.LstdFlags),
	}
}

// Run processes membership and broadcast events until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebsocketClients.Set(0)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// fanout delivers to every identified client. Clients whose send buffer is
// full are collected under the read lock and dropped after it is released.
func (h *Hub) fanout(msg []byte) {
	var stalled []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.userID() == "" {
			continue
		}
		select {
		case c.send <- msg:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range stalled {
		h.logger.Printf("dropping stalled client %s", c.userID())
		metrics.BroadcastsDropped.Inc()
		h.drop(c)
	}
}

// Broadcast queues a frame for every identified client.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		metrics.BroadcastsDropped.Inc()
	}
}

// SendToUser delivers a frame to every socket identified as the user.
// Returns whether at least one socket took it.
func (h *Hub) SendToUser(userID string, msg []byte) bool {
	sent := false
	h.mu.RLock()
	for c := range h.clients {
		if c.userID() != userID {
			continue
		}
		select {
		case c.send <- msg:
			sent = true
		default:
		}
	}
	h.mu.RUnlock()
	return sent
}

// ConnectedUsers returns the distinct user ids with at least one identified
// socket.
func (h *Hub) ConnectedUsers() map[string]bool {
	out := make(map[string]bool)
	h.mu.RLock()
	for c := range h.clients {
		if id := c.userID(); id != "" {
			out[id] = true
		}
	}
	h.mu.RUnlock()
	return out
}

// ProcessorLeft broadcasts a departure frame. Satisfies the liveness
// sweeper's notifier.
func (h *Hub) ProcessorLeft(id string) {
	h.Broadcast(LeftMessage(id))
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	go c.readPump()
}
