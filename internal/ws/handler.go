// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/hub"
	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// Client messages.
const (
	msgRequestSync = "request_sync"
	msgNodeUpdate  = "node_update"

	errInvalidMessage = "Invalid message"
	errInvalidUpdate  = "Invalid update message"
)

// inbound is the union of messages a client may send. Pointer fields
// distinguish a missing key from an empty string. LineNumber stays raw so a
// bad value is reported as an invalid update rather than an invalid message.
type inbound struct {
	Type       string          `json:"type"`
	FilePath   string          `json:"file_path"`
	LineNumber json.RawMessage `json:"line_number"`
	OldText    *string         `json:"old_text"`
	NewText    *string         `json:"new_text"`
}

// lineNumber decodes the optional 1-based line hint. Any JSON number with no
// fractional part is accepted, so 3 and 3.0 are the same line.
func (m inbound) lineNumber() (*int, bool) {
	if len(m.LineNumber) == 0 || string(m.LineNumber) == "null" {
		return nil, true
	}
	var f float64
	if err := json.Unmarshal(m.LineNumber, &f); err != nil {
		return nil, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, false
	}
	n := int(f)
	return &n, true
}

// Handler upgrades requests to live editor connections.
type Handler struct {
	hub      *hub.Hub
	store    *docstore.Store
	origins  []string
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a Handler serving store changes through h. origins are
// the cross-origin pages allowed to connect in addition to the same host.
func NewHandler(h *hub.Hub, store *docstore.Store, origins []string, logger *zap.Logger) *Handler {
	wh := &Handler{
		hub:     h,
		store:   store,
		origins: origins,
		logger:  logging.OrNop(logger).Named("ws"),
	}
	wh.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     wh.checkOrigin,
	}
	return wh
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	h.logger.Warn("WS_ORIGIN_REJECTED", zap.String("origin", origin))
	return false
}

// ServeHTTP upgrades the connection and runs it until the peer disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("WS_UPGRADE_FAILED", zap.Error(err))
		return
	}

	c := newClient(conn, h.logger)
	h.hub.Subscribe(c)
	h.logger.Info("WS_CONNECTED", zap.String("client", c.ID()), zap.String("remote", r.RemoteAddr))

	go c.writePump()
	c.readPump(func(data []byte) {
		h.handleMessage(context.Background(), c, data)
	})

	h.hub.Unsubscribe(c.ID())
	h.logger.Info("WS_DISCONNECTED", zap.String("client", c.ID()))
}

func (h *Handler) handleMessage(ctx context.Context, c *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Send(ctx, hub.ErrorEvent(errInvalidMessage))
		return
	}

	switch msg.Type {
	case msgRequestSync:
		tree, err := h.store.BuildTree()
		if err != nil {
			h.logger.Error("TREE_BUILD_FAILED", zap.Error(err))
			c.Send(ctx, hub.ErrorEvent(err.Error()))
			return
		}
		c.Send(ctx, hub.Sync(tree))

	case msgNodeUpdate:
		h.handleNodeUpdate(ctx, c, msg)

	default:
		h.logger.Debug("WS_UNKNOWN_MESSAGE", zap.String("type", msg.Type))
	}
}

// handleNodeUpdate applies the edit. The store notifies the hub, so the
// sender's file_updated is queued ahead of its update_success.
func (h *Handler) handleNodeUpdate(ctx context.Context, c *Client, msg inbound) {
	line, ok := msg.lineNumber()
	if !ok || msg.FilePath == "" || msg.OldText == nil || msg.NewText == nil {
		c.Send(ctx, hub.ErrorEvent(errInvalidUpdate))
		return
	}

	_, err := h.store.ApplyTargetedReplace(ctx, docstore.Replacement{
		Path:    msg.FilePath,
		OldText: *msg.OldText,
		NewText: *msg.NewText,
		Line:    line,
	})
	if err != nil {
		var se *docstore.Error
		if !errors.As(err, &se) {
			h.logger.Error("NODE_UPDATE_FAILED", zap.String("path", msg.FilePath), zap.Error(err))
		}
		c.Send(ctx, hub.ErrorEvent(err.Error()))
		return
	}

	c.Send(ctx, hub.UpdateSuccess(msg.FilePath))
}
