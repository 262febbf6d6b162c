// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/hub"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// SendQueueSize bounds the events buffered per client.
	SendQueueSize = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	// old_text and new_text may each be a full document, JSON-escaped.
	maxMessageSize = 12*docstore.MaxDocumentSize + 4096
)

var (
	// ErrClientClosed is returned by Send after the connection ended.
	ErrClientClosed = errors.New("client closed")

	// ErrQueueFull is returned by Send when the client is not keeping up.
	ErrQueueFull = errors.New("send queue full")
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is one live websocket connection. It implements hub.Subscriber.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan hub.Event
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan hub.Event, SendQueueSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("client", id)),
	}
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// Send queues ev without blocking.
func (c *Client) Send(ctx context.Context, ev hub.Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("EVENT_ENCODE_FAILED", zap.Error(err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("WS_WRITE_FAILED", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("WS_PING_FAILED", zap.Error(err))
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump delivers inbound frames to handle until the peer goes away.
func (c *Client) readPump(handle func(data []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WS_READ_FAILED", zap.Error(err))
			}
			return
		}
		handle(data)
	}
}
