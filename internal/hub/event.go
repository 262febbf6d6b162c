// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

// EventType names an outbound message.
type EventType string

const (
	TypeFileUpdated   EventType = "file_updated"
	TypeSync          EventType = "sync"
	TypeUpdateSuccess EventType = "update_success"
	TypeError         EventType = "error"
)

// Event is one message sent to a live connection.
type Event struct {
	Type    EventType
	Path    string
	Content string
	Tree    *docstore.Tree
	Message string
}

// FileUpdated announces new content for path.
func FileUpdated(path, content string) Event {
	return Event{Type: TypeFileUpdated, Path: path, Content: content}
}

// Sync carries a full tree snapshot.
func Sync(tree *docstore.Tree) Event {
	return Event{Type: TypeSync, Tree: tree}
}

// UpdateSuccess acknowledges a node update to its sender.
func UpdateSuccess(path string) Event {
	return Event{Type: TypeUpdateSuccess, Path: path}
}

// ErrorEvent reports a failure to a single client.
func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// MarshalJSON encodes only the fields that belong to the event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeFileUpdated:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Path    string    `json:"path"`
			Content string    `json:"content"`
		}{e.Type, e.Path, e.Content})
	case TypeSync:
		return json.Marshal(struct {
			Type EventType      `json:"type"`
			Tree *docstore.Tree `json:"tree"`
		}{e.Type, e.Tree})
	case TypeUpdateSuccess:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Path string    `json:"path"`
		}{e.Type, e.Path})
	case TypeError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
