package chat

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Configuration constants (Good practice to avoid magic numbers)
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
)

// Client is a middleman between the websocket connection and the registry.
// Inbound traffic over the socket is ping/pong only; every mutation goes
// through the REST API, so the read pump exists to detect disconnects.
type Client struct {
	registry *Registry
	session  *Session
	conn     *websocket.Conn
	log      *logrus.Entry
}

// NewClient binds a registered session to its websocket connection.
func NewClient(registry *Registry, session *Session, conn *websocket.Conn) *Client {
	return &Client{
		registry: registry,
		session:  session,
		conn:     conn,
		log: logrus.WithFields(logrus.Fields{
			"component": "client",
			"identity":  session.Identity,
			"session":   session.ID,
		}),
	}
}

// ReadPump drains the websocket until the connection dies, then
// unregisters. The registry ignores the unregister if a newer connection
// already superseded this session.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients send nothing of interest over the socket; discard.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("unexpected close")
			}
			return
		}
	}
}

// WritePump pumps the session's outbound queue to the websocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// Drain queued events in one writer to reduce syscalls.
			n := len(c.session.Outbound())
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.session.Outbound())
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-c.session.Done():
			// Superseded or unregistered: tell the peer and stop.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
