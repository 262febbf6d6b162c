// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hub keeps the set of live editor connections and fans document
// events out to them.
//
// # Key Types
//
//   - Hub: subscriber registry with concurrent Broadcast
//   - Subscriber: anything that can accept an Event (a websocket client)
//   - Event: one outbound message, encoded to the editor wire shape
//
// # Usage
//
//	h := hub.New(logger)
//	store := docstore.New(root).WithNotifier(h)
//	h.Subscribe(client)
//	defer h.Unsubscribe(client.ID())
//
// Hub implements docstore.Notifier, so every persisted write reaches every
// subscriber as a file_updated event.
package hub
