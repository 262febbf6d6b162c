// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"encoding/json"
	"fmt"
)

// Event is one item of an agent run's output stream. The set of
// implementations is closed.
type Event interface {
	isEvent()
}

// TextEvent is a streamed piece of assistant text.
type TextEvent struct{ Content string }

// ToolUseEvent announces that the assistant is running a tool.
type ToolUseEvent struct{ Tool string }

// ResultEvent carries the final assistant answer.
type ResultEvent struct{ Content string }

// UnknownEvent relays a provider message with no specific mapping.
type UnknownEvent struct{ Content string }

// DoneEvent ends a successful run.
type DoneEvent struct{}

// ErrorEvent ends a failed run.
type ErrorEvent struct{ Message string }

func (TextEvent) isEvent()    {}
func (ToolUseEvent) isEvent() {}
func (ResultEvent) isEvent()  {}
func (UnknownEvent) isEvent() {}
func (DoneEvent) isEvent()    {}
func (ErrorEvent) isEvent()   {}

// IsTerminal reports whether ev ends a run.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case DoneEvent, ErrorEvent:
		return true
	}
	return false
}

// Encode renders ev in the chat stream wire format.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case TextEvent:
		return json.Marshal(map[string]string{"type": "text", "content": e.Content})
	case ToolUseEvent:
		return json.Marshal(map[string]string{"type": "tool_use", "tool": e.Tool})
	case ResultEvent:
		return json.Marshal(map[string]string{"type": "result", "content": e.Content})
	case UnknownEvent:
		return json.Marshal(map[string]string{"type": "message", "content": e.Content})
	case DoneEvent:
		return []byte(`{"done":true}`), nil
	case ErrorEvent:
		return json.Marshal(map[string]string{"error": e.Message})
	default:
		return nil, fmt.Errorf("unknown agent event %T", ev)
	}
}
