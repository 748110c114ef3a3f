package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hangulling/dorandoran-chat/internal/config"
	"github.com/Hangulling/dorandoran-chat/internal/log"
)

// ErrSendBufferFull is returned when a client cannot keep up with its event
// stream. The registry treats it as a write failure and detaches the handle;
// a hung client must not stall delivery to others.
var ErrSendBufferFull = errors.New("client send buffer full")

// ErrClientClosed is returned by WriteEvent once the client has shut down.
// The dispatcher may race a disconnect and still hold a registry snapshot
// referencing this client, so a late write must fail, never panic.
var ErrClientClosed = errors.New("client closed")

// pushFrame is the server→client event format on the WebSocket leg.
type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client owns one WebSocket connection: a blocking read pump for inbound
// frames and a write pump that serializes all outbound traffic, pings
// included, through a single goroutine.
type Client struct {
	UserID string
	RoomID string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	cfg       config.WebSocketConfig
	closeOnce sync.Once
	onClose   func()

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, userID, roomID string, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		UserID: userID,
		RoomID: roomID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		cfg:    cfg,
	}
}

// WriteEvent queues an event for delivery. A full buffer means the client is
// not draining and counts as a transport write failure, as does a write
// after the client shut down. The send channel is never closed; WritePump is
// stopped through the done channel instead, so a racing write can only fail.
func (c *Client) WriteEvent(eventType string, data []byte) error {
	frame, err := json.Marshal(pushFrame{Event: eventType, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// OnClose registers the single cleanup hook. It runs exactly once on any
// terminal condition: client disconnect, read/write error, or server-side
// Close.
func (c *Client) OnClose(fn func()) {
	c.onClose = fn
}

// ReadPump blocks reading inbound frames and hands each to handler. It
// returns when the connection drops.
func (c *Client) ReadPump(handler func([]byte)) {
	defer c.shutdown()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			l := log.L()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Warn().Err(err).
					Str(log.FieldUserID, c.UserID).
					Str(log.FieldRoomID, c.RoomID).
					Msg("websocket read error")
			} else {
				l.Debug().
					Str(log.FieldUserID, c.UserID).
					Str(log.FieldRoomID, c.RoomID).
					Msg("websocket closed")
			}
			return
		}
		handler(message)
	}
}

// WritePump drains the send channel onto the connection, enforcing a write
// deadline per frame and keeping the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears the connection down from the server side.
func (c *Client) Close() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}
