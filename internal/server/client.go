// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/sse-chat/internal/broadcast"
	"github.com/Tyrowin/sse-chat/internal/config"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

var (
	// ErrClientClosed is returned when a message is delivered to a closed client.
	ErrClientClosed = errors.New("websocket client closed")
	// ErrSendBufferFull is returned when a connection is too slow to drain its
	// outgoing queue. Used by WebSocket clients and event streams.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is a WebSocket connection taking part in the chat. It publishes the
// messages it reads and queues every broadcast message for writing.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	broadcaster    *broadcast.Broadcaster
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	logger         zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client for conn. The send channel is buffered so a
// publish never waits on the network.
func NewClient(conn *websocket.Conn, b *broadcast.Broadcaster, cfg config.WebSocketConfig, addr string, logger zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		broadcaster:    b,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		logger:         logger.With().Str("remote_addr", addr).Logger(),
	}
}

// Deliver queues message for the client. It is the broadcast listener of the
// connection and never blocks.
func (c *Client) Deliver(message string) error {
	payload, err := json.Marshal(Message{Content: message})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops delivery and lets the write pump send a close frame. It is safe
// to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn().Int64("max_bytes", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info().Err(err).Msg("client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn().Err(err).Msg("unexpected WebSocket close")
	default:
		c.logger.Warn().Err(err).Msg("WebSocket read error")
	}
	return true
}

// checkRateLimit reports whether the client may publish another message.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		return false
	}
	return true
}

// processMessage decodes a raw frame and publishes its content. It reports
// whether the message was published.
func (c *Client) processMessage(rawMessage []byte) bool {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("invalid message")
		return false
	}

	delivered := c.broadcaster.Publish(msg.Content)
	c.logger.Debug().Int("delivered", delivered).Msg("chat message published")
	return true
}

func (c *Client) readPump() {
	defer c.closeConnection()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

// writePump drains the send queue onto the connection and pings the peer
// every pingPeriod. A closed queue ends the session with a normal close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := c.write(websocket.CloseMessage, closeFrame); err != nil {
					c.logger.Debug().Err(err).Msg("error writing close message")
				}
				return
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn().Err(err).Msg("error writing message")
				}
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("error writing ping message")
				return
			}
		}
	}
}

// write sends one frame under the write deadline.
func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteMessage(messageType, payload)
}

// closeConnection closes the underlying connection, ignoring the errors a
// second close produces.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn().Err(err).Msg("error closing connection")
	}
}
