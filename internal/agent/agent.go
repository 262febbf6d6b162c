// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/cloud"
	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// DefaultMaxTurns bounds the model/tool round trips of one run.
const DefaultMaxTurns = 8

// ErrUnavailable is returned by Run when no provider is configured.
var ErrUnavailable = errors.New("agent not available")

// EmitFunc receives run events in order. An error means the consumer is
// gone and the run should stop.
type EmitFunc func(Event) error

// Options configures an Agent.
type Options struct {
	SystemPrompt string
	Model        string
	MaxTokens    int
	MaxTurns     int
	Logger       *zap.Logger
}

// Agent relays chat requests to a provider and runs the tools the model
// asks for.
type Agent struct {
	provider cloud.Provider
	tools    *Toolset
	opts     Options
	logger   *zap.Logger
}

// New creates an Agent. provider may be nil, in which case the agent is
// unavailable.
func New(provider cloud.Provider, tools *Toolset, opts Options) *Agent {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	return &Agent{
		provider: provider,
		tools:    tools,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger).Named("agent"),
	}
}

// Available reports whether a configured provider is present.
func (a *Agent) Available() bool {
	return a.provider != nil && a.provider.IsConfigured()
}

// ProviderName returns the provider name, or "" when there is none.
func (a *Agent) ProviderName() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

// Run answers message, emitting events as they happen. Every run emits
// exactly one terminal event (DoneEvent or ErrorEvent) unless the consumer
// fails first, in which case the run is abandoned and the consumer's error
// is returned.
func (a *Agent) Run(ctx context.Context, message string, emit EmitFunc) error {
	runID := ulid.Make().String()
	logger := a.logger.With(zap.String("run", runID))

	if !a.Available() {
		return emit(ErrorEvent{Message: ErrUnavailable.Error()})
	}

	// Consumer errors are remembered so they can be told apart from
	// provider failures that merely wrap them.
	var emitErr error
	send := func(ev Event) error {
		if emitErr != nil {
			return emitErr
		}
		if err := emit(ev); err != nil {
			emitErr = err
			logger.Debug("AGENT_CLIENT_GONE", zap.Error(err))
		}
		return emitErr
	}

	messages := []cloud.ChatMessage{
		cloud.NewSystemMessage(a.opts.SystemPrompt),
		cloud.NewUserMessage(message),
	}
	var tools []cloud.Tool
	if a.tools != nil {
		tools = a.tools.Definitions()
	}

	logger.Info("AGENT_RUN_START",
		zap.String("provider", a.provider.Name()),
		zap.Int("message_len", len(message)),
		zap.Int("tools", len(tools)),
	)

	for turn := 1; turn <= a.opts.MaxTurns; turn++ {
		reply, err := a.provider.StreamChat(ctx, cloud.ChatRequest{
			Model:     a.opts.Model,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: a.opts.MaxTokens,
		}, func(text string) error {
			return send(TextEvent{Content: text})
		})
		if emitErr != nil {
			return emitErr
		}
		if err != nil {
			logger.Warn("AGENT_RUN_FAILED", zap.Int("turn", turn), zap.Error(err))
			return send(ErrorEvent{Message: err.Error()})
		}

		messages = append(messages, *reply)

		if len(reply.ToolCalls) == 0 {
			if err := send(ResultEvent{Content: reply.Content}); err != nil {
				return err
			}
			logger.Info("AGENT_RUN_COMPLETE", zap.Int("turns", turn))
			return send(DoneEvent{})
		}

		for _, call := range reply.ToolCalls {
			if err := send(ToolUseEvent{Tool: call.Function.Name}); err != nil {
				return err
			}
			messages = append(messages, cloud.NewToolMessage(call, a.runTool(ctx, logger, call)))
		}
	}

	logger.Warn("AGENT_TURN_LIMIT", zap.Int("max_turns", a.opts.MaxTurns))
	return send(ErrorEvent{Message: fmt.Sprintf("agent stopped after %d turns", a.opts.MaxTurns)})
}

// runTool executes call and returns the text handed back to the model.
// Tool failures are reported to the model rather than ending the run.
func (a *Agent) runTool(ctx context.Context, logger *zap.Logger, call cloud.ToolCall) string {
	if a.tools == nil {
		return "Error: " + ErrToolNotAllowed.Error()
	}
	out, err := a.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		logger.Debug("AGENT_TOOL_FAILED", zap.String("tool", call.Function.Name), zap.Error(err))
		return "Error: " + err.Error()
	}
	logger.Debug("AGENT_TOOL_OK", zap.String("tool", call.Function.Name), zap.Int("bytes", len(out)))
	return out
}
