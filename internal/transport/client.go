package transport

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

	// Maximum message size allowed from peer. SDP descriptors fit
	// comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Dispatcher receives inbound traffic from a client. The event router
// implements it. Dispatch is called once per message from the
// connection's read pump, so events from one connection are handled
// strictly in arrival order.
type Dispatcher interface {
	Dispatch(connID string, raw []byte)
	HandleDisconnect(connID string)
}

// Client wraps one websocket connection.
type Client struct {
	ID string

	hub        *Hub
	conn       *websocket.Conn
	dispatcher Dispatcher
	send       chan []byte
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, dispatcher Dispatcher) *Client {
	return &Client{
		ID:         id,
		hub:        hub,
		conn:       conn,
		dispatcher: dispatcher,
		send:       make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and starts its pumps. It returns
// immediately; the pumps own the connection from here.
func (c *Client) Run() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("send buffer full, dropping message", "conn", c.ID)
	}
}

// readPump reads inbound messages and hands them to the dispatcher.
// All reads happen on this goroutine. On exit the disconnect is
// treated as a leave before the connection is torn down.
func (c *Client) readPump() {
	defer func() {
		c.dispatcher.HandleDisconnect(c.ID)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "conn", c.ID, "error", err)
			}
			break
		}
		c.dispatcher.Dispatch(c.ID, message)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. All writes happen on this goroutine.
func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("websocket write error", "conn", c.ID, "error", err)
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
