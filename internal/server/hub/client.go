package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 75 * time.Second
	pingPeriod = 50 * time.Second

	// sendBuffer bounds how far a client may fall behind before fanout
	// drops it.
	sendBuffer = 32

	maxFrameSize = 4096
)

// client is one socket. It stays anonymous until a connect frame names the
// user; anonymous sockets receive nothing.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	user string
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
}

func (c *client) userID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *client) setUser(id string) {
	c.mu.Lock()
	c.user = id
	c.mu.Unlock()
}

// readPump consumes control frames until the socket closes. A connect frame
// identifies the socket and answers with the current presence snapshot; a
// disconnect frame de-identifies it without closing the connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if string(raw) == "disconnect" {
			c.setUser("")
			continue
		}
		var ctl control
		if err := json.Unmarshal(raw, &ctl); err != nil {
			continue
		}
		switch {
		case ctl.Connect != nil:
			c.setUser(*ctl.Connect)
			select {
			case c.send <- ProcessorMessage(c.hub.presence.Snapshot()):
			default:
			}
		case ctl.Disconnect != nil:
			c.setUser("")
		}
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
