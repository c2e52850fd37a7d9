package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

// Session is the fan-out surface of one live connection. The registry, room
// manager, pipeline and call coordinator only ever see this interface, which
// keeps them testable without a socket.
type Session interface {
	ID() string
	UserID() string
	Send(ev event.WsEvent) bool
}

// Client is one WebSocket connection. The user id is empty until the
// connection authenticates.
type Client struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	egress chan event.WsEvent
	logger *zap.Logger

	userID   string
	userIDMu sync.RWMutex

	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

// NewClient wraps a freshly upgraded connection and starts its pumps.
func NewClient(conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		id:         uuid.New().String(),
		conn:       conn,
		hub:        h,
		egress:     make(chan event.WsEvent, sendBufSize),
		logger:     h.logger,
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}

	go client.readMessages()
	go client.writeMessages()
	client.logger.Debug("client connected", zap.String("connection_id", client.id))
	return client
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string {
	c.userIDMu.RLock()
	defer c.userIDMu.RUnlock()
	return c.userID
}

func (c *Client) setUser(userID string) {
	c.userIDMu.Lock()
	c.userID = userID
	c.userIDMu.Unlock()
}

func (c *Client) readMessages() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.logger.Warn("failed to unregister client: timeout", zap.String("connection_id", c.id))
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent

			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.logger.Debug("client disconnected", zap.String("connection_id", c.id))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.logger.Warn("unexpected close", zap.String("connection_id", c.id), zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Debug("client timed out, closing connection", zap.String("connection_id", c.id))
					return
				}

				c.logger.Debug("read error", zap.String("connection_id", c.id), zap.Error(err))
				return
			}

			// Non-blocking handoff into the processing queue so a slow worker
			// pool never blocks the reader.
			select {
			case c.hub.inbound <- inboundMessage{client: c, event: ev}:
			case <-time.After(inboundSendTimeout):
				c.logger.Warn("inbound queue full, dropping client", zap.String("connection_id", c.id))
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) writeMessages() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.egress:
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
					c.logger.Debug("close write failed", zap.Error(err))
				}
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write error", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Send enqueues an event for delivery. Returns false if the client is closed
// or its buffer stayed full past the send timeout. The read lock spans the
// enqueue: Close takes the write lock before closing egress, so a send can
// never hit a closed channel.
func (c *Client) Send(ev event.WsEvent) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(sendTimeout):
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		// Mark as closed before closing the channel
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()
		close(c.egress)

		// Wait for the write pump to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection", zap.String("connection_id", c.id))
			}
		}()
	})
}
