// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent runs the editor's AI assistant.
//
// A run sends the user's message to a cloud.Provider together with the
// document tools the configuration allows, executes any tool calls against
// the document store, and keeps going until the model answers without
// calling a tool or the turn limit is reached. Output is a stream of Events
// ending in DoneEvent or ErrorEvent.
//
// # Key Types
//
//   - Agent: provider plus tools plus static request settings
//   - Toolset: Read, Write, Edit, Glob and Grep over a docstore.Store
//   - Event: TextEvent, ToolUseEvent, ResultEvent, UnknownEvent, DoneEvent, ErrorEvent
//
// # Usage
//
//	tools := agent.NewToolset(store, features.AllowedTools(), projectRoot)
//	a := agent.New(provider, tools, agent.Options{SystemPrompt: prompt})
//	err := a.Run(ctx, "Add a child node", func(ev agent.Event) error {
//	    data, _ := agent.Encode(ev)
//	    return writeSSE(data)
//	})
//
// Edits made by tools go through the store, so live editor connections see
// them as ordinary file_updated broadcasts.
package agent
