package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB fits any SDP.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. Slow consumers drop messages
	// rather than blocking the hub.
	sendBuffer = 256
)

// Client wraps a single websocket connection to one call participant.
// The per-connection write pump is the only writer, which gives the
// per-(sender, recipient) ordering guarantee the mesh relies on.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Message
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *Message, sendBuffer),
	}
}

// Send implements Conn. It never blocks: when the outbound buffer is full
// or already closed the message is dropped and false returned.
func (c *Client) Send(msg *Message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine, ensuring at
// most one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "remote", c.conn.RemoteAddr(), "err", err)
			}
			break
		}

		c.hub.Inbound <- Inbound{From: c, Msg: &msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// sends periodic pings. One goroutine per connection, the only writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Warn("websocket write error", "remote", c.conn.RemoteAddr(), "err", err)
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
