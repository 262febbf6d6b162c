// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// DefaultGeminiModel is used when the requested model is not a Gemini id.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient streams chat turns from the Gemini API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	logger  *zap.Logger

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient creates a client with the given API key.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey: strings.TrimSpace(apiKey),
		model:  DefaultGeminiModel,
		logger: zap.NewNop(),
	}
}

// WithBaseURL overrides the API endpoint.
func (g *GeminiClient) WithBaseURL(url string) *GeminiClient {
	g.baseURL = url
	return g
}

// WithModel sets the default model. Non-Gemini ids are ignored.
func (g *GeminiClient) WithModel(model string) *GeminiClient {
	if strings.HasPrefix(model, "gemini") {
		g.model = model
	}
	return g
}

// WithLogger sets the logger.
func (g *GeminiClient) WithLogger(l *zap.Logger) *GeminiClient {
	g.logger = logging.OrNop(l).Named("gemini")
	return g
}

// Name returns "gemini".
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Model returns the default model.
func (g *GeminiClient) Model() string {
	return g.model
}

// IsConfigured returns true if an API key is set.
func (g *GeminiClient) IsConfigured() bool {
	return g.apiKey != ""
}

func (g *GeminiClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if g.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
		}
		g.client, g.initErr = genai.NewClient(ctx, cfg)
	})
	if g.initErr != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", g.initErr)
	}
	return g.client, nil
}

// StreamChat streams one assistant turn via GenerateContentStream.
func (g *GeminiClient) StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaFunc) (*ChatMessage, error) {
	if !g.IsConfigured() {
		return nil, ErrNotConfigured
	}
	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	model := g.model
	if strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}

	contents, system, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, err
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             toGeminiTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	msg := &ChatMessage{Role: RoleAssistant}
	var text strings.Builder

	for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return nil, &StreamError{Partial: text.String(), Err: err}
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
					if onDelta != nil {
						if err := onDelta(part.Text); err != nil {
							return nil, &StreamError{Partial: text.String(), Err: err}
						}
					}
				}
				if fc := part.FunctionCall; fc != nil {
					args, err := json.Marshal(fc.Args)
					if err != nil {
						return nil, fmt.Errorf("encode %s arguments: %w", fc.Name, err)
					}
					id := fc.ID
					if id == "" {
						id = fmt.Sprintf("call_%d", len(msg.ToolCalls))
					}
					msg.ToolCalls = append(msg.ToolCalls, ToolCall{
						ID:       id,
						Type:     "function",
						Function: FunctionCall{Name: fc.Name, Arguments: string(args)},
					})
				}
			}
		}
	}

	msg.Content = text.String()
	g.logger.Debug("STREAM_COMPLETE", zap.String("model", model), zap.Int("tool_calls", len(msg.ToolCalls)))
	return msg, nil
}

// toGeminiContents converts the conversation. System messages become the
// system instruction; tool results become function responses.
func toGeminiContents(msgs []ChatMessage) ([]*genai.Content, *genai.Content, error) {
	var system []string
	var contents []*genai.Content

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)

		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))

		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("decode %s arguments: %w", tc.Function.Name, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	var instruction *genai.Content
	if len(system) > 0 {
		instruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, instruction, nil
}

func toGeminiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
		}
		if len(t.Function.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(t.Function.Parameters, &schema); err == nil {
				decl.ParametersJsonSchema = schema
			}
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
