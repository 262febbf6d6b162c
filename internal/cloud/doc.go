// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming chat backends used by the editor's
// assistant.
//
// Both backends implement Provider: one assistant turn is streamed, text
// deltas are forwarded as they arrive, and tool calls requested by the model
// are returned fully assembled so the caller can run them and continue the
// conversation.
//
// # Key Types
//
//   - Provider: streaming chat backend interface
//   - OpenRouterClient: OpenAI-compatible chat completions over SSE
//   - GeminiClient: Gemini API through google.golang.org/genai
//   - ChatMessage, ToolCall, Tool: provider-neutral conversation types
//   - SSEReader: Server-Sent Events parser
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(apiKey).WithModel("haiku")
//	msg, err := client.StreamChat(ctx, cloud.ChatRequest{
//	    Messages: []cloud.ChatMessage{cloud.NewUserMessage("Hello")},
//	}, func(text string) error {
//	    fmt.Print(text)
//	    return nil
//	})
//
// API keys are never logged.
package cloud
