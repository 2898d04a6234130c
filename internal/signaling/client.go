package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame or control message to the peer.
	writeWait = 10 * time.Second

	// Outbound frames queued per connection before it is considered stuck.
	sendBuffer = 64
)

// Client is one WebSocket connection to this signal node. Frames read
// from the socket pass the protocol guards and are dispatched to the hub;
// frames destined for the peer are queued on the send channel so
// per-connection order is preserved.
type Client struct {
	logger  *slog.Logger
	hub     *Hub
	tracker *Tracker
	conn    *websocket.Conn

	remoteAddr      string
	maxMessageBytes int

	send  chan []byte
	alive atomic.Bool

	mutex  sync.Mutex
	closed bool

	// Room membership, owned by the hub and guarded by its lock.
	roomID      string
	isInitiator bool
}

func newClient(conn *websocket.Conn, hub *Hub, tracker *Tracker, maxMessageBytes int, logger *slog.Logger) *Client {
	c := &Client{
		logger:          logger,
		hub:             hub,
		tracker:         tracker,
		conn:            conn,
		remoteAddr:      conn.RemoteAddr().String(),
		maxMessageBytes: maxMessageBytes,
		send:            make(chan []byte, sendBuffer),
	}
	c.alive.Store(true)
	return c
}

func (c *Client) start() {
	go c.readPump()
	go c.writePump()
}

// enqueue queues a frame for delivery. A connection whose buffer is full
// has stopped draining and is closed rather than blocking the sender.
func (c *Client) enqueue(frame []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn("Send buffer full, closing connection",
			slog.String("client", c.remoteAddr))
		c.closeLocked()
	}
}

// Terminate forcibly closes the socket. The read pump unblocks with an
// error and runs the normal cleanup path.
func (c *Client) Terminate() {
	c.conn.Close()
}

func (c *Client) close() {
	c.mutex.Lock()
	c.closeLocked()
	c.mutex.Unlock()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.conn.Close()
}

func (c *Client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.tracker.Untrack(c)
		c.close()
		c.logger.Info("Client disconnected", slog.String("client", c.remoteAddr))
	}()

	// The hard read limit sits above the protocol limit so an oversized
	// frame can be answered with a typed error instead of tearing the
	// connection down.
	c.conn.SetReadLimit(int64(2 * c.maxMessageBytes))
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Read error",
					slog.String("client", c.remoteAddr),
					slog.String("error", err.Error()))
			}
			return
		}

		c.handleFrame(raw)
	}
}

// handleFrame applies the protocol guards in order before any parsing,
// then dispatches: join goes to the hub, everything else is relayed
// verbatim.
func (c *Client) handleFrame(raw []byte) {
	if len(raw) > c.maxMessageBytes {
		c.enqueue(errorFrame(errMessageTooLarge))
		return
	}

	msgType, protoErr := parseType(raw)
	if protoErr != "" {
		c.enqueue(errorFrame(protoErr))
		return
	}

	if msgType == typeJoin {
		var join joinMessage
		if err := json.Unmarshal(raw, &join); err != nil {
			c.enqueue(errorFrame(errInvalidStructure))
			return
		}
		c.hub.Join(c, join.Room)
		return
	}

	c.hub.Relay(c, raw)
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	// Send channel closed: say goodbye properly.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
