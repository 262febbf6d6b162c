// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// Subscriber receives broadcast events. Send must not block for long; a
// slow subscriber should fail rather than stall the others.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, ev Event) error
}

// Hub is the registry of live subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	logger *zap.Logger
}

// New creates an empty hub.
func New(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]Subscriber),
		logger: logging.OrNop(logger).Named("hub"),
	}
}

// Subscribe registers sub. A subscriber with the same id is replaced.
func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	h.subs[sub.ID()] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("SUBSCRIBER_ADDED", zap.String("id", sub.ID()), zap.Int("count", n))
}

// Unsubscribe removes the subscriber with id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("SUBSCRIBER_REMOVED", zap.String("id", id), zap.Int("count", n))
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers ev to every subscriber registered at the time of the
// call and returns how many accepted it. Failed deliveries are logged and
// skipped.
func (h *Hub) Broadcast(ctx context.Context, ev Event) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return 0
	}

	var delivered atomic.Int64
	var g errgroup.Group
	for _, sub := range subs {
		g.Go(func() error {
			if err := sub.Send(ctx, ev); err != nil {
				h.logger.Debug("BROADCAST_SEND_FAILED",
					zap.String("id", sub.ID()),
					zap.String("type", string(ev.Type)),
					zap.Error(err),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(delivered.Load())
	h.logger.Debug("BROADCAST",
		zap.String("type", string(ev.Type)),
		zap.Int("delivered", n),
		zap.Int("subscribers", len(subs)),
	)
	return n
}

// DocumentChanged broadcasts a file_updated event for path.
func (h *Hub) DocumentChanged(ctx context.Context, path, content string) {
	h.Broadcast(ctx, FileUpdated(path, content))
}
