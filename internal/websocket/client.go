package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"arena-relay/internal/models"
	"arena-relay/internal/relay"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// Dispatcher is the part of the router a connection talks to.
type Dispatcher interface {
	Dispatch(ctx context.Context, c relay.Caller, env models.Envelope) relay.Outcome
	Deliver(notes []relay.Notification)
	Disconnect(ctx context.Context, userID int, connID string)
	Touch(userID int, connID string) bool
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	router Dispatcher
	send   chan []byte

	id        string
	userID    int
	expiresAt time.Time

	done        chan struct{}
	closeOnce   sync.Once
	closeReason string
}

func NewClient(hub *Hub, conn *websocket.Conn, router Dispatcher, userID int, expiresAt time.Time) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		router:    router,
		send:      make(chan []byte, sendBuffer),
		id:        uuid.NewString(),
		userID:    userID,
		expiresAt: expiresAt,
		done:      make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) caller() relay.Caller {
	return relay.Caller{UserID: c.userID, ConnID: c.id, ExpiresAt: c.expiresAt}
}

// Close asks the write pump to flush, send a close frame and hang up. It never
// blocks and is safe to call more than once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

// Send queues a frame. It drops the frame when the client is closing or its
// buffer is full, so a slow reader cannot stall anyone else.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		logger.Warn("Send buffer full for user %d, dropping frame", c.userID)
		return false
	}
}

func (c *Client) sendEnvelope(env models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("Error marshaling %s: %v", env.Type, err)
		return
	}
	c.Send(data)
}

// ReadPump dispatches inbound frames one at a time, so events from one
// connection are handled in arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.router.Disconnect(context.Background(), c.userID, c.id)
		c.Close("")
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.router.Touch(c.userID, c.id)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for user %d: %v", c.userID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			c.sendEnvelope(relay.ErrorEnvelope(apperror.InvalidInput("frames must be JSON envelopes with a type")))
			continue
		}

		out := c.router.Dispatch(ctx, c.caller(), env)
		if out.Reply != nil {
			c.sendEnvelope(*out.Reply)
		}
		c.router.Deliver(out.Notify)
		if out.Close {
			c.Close(closeReasonFor(out))
			return
		}
	}
}

func closeReasonFor(out relay.Outcome) string {
	if out.Reply != nil && out.Reply.Type == models.EventError {
		var p models.ErrorPayload
		if err := out.Reply.Decode(&p); err == nil {
			return p.Message
		}
	}
	return "bye"
}

// drain writes whatever is still queued, best effort.
func (c *Client) drain() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error for user %d: %v", c.userID, err)
				c.Close("")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close("")
				return
			}

		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, truncateReason(c.closeReason)))
			return
		}
	}
}

// truncateReason keeps close reasons within the 123 bytes a close frame allows.
func truncateReason(reason string) string {
	if len(reason) <= 123 {
		return reason
	}
	return reason[:123]
}
