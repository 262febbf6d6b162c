// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/agent"
	"github.com/jeranaias/mindmap-editor/internal/cloud"
	"github.com/jeranaias/mindmap-editor/internal/config"
	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/hub"
	"github.com/jeranaias/mindmap-editor/internal/locale"
	"github.com/jeranaias/mindmap-editor/internal/server"
	"github.com/jeranaias/mindmap-editor/internal/watch"
)

// app holds the components every command shares.
type app struct {
	cfg      *config.Config
	features *config.Features
	store    *docstore.Store
	logger   *zap.Logger
}

// newApp loads features.json and opens the document store.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	features, err := config.LoadFeatures(cfg.Resolve(cfg.Paths.FeaturesFile))
	if err != nil {
		return nil, err
	}
	store := docstore.New(cfg.MindmapRoot()).
		WithTitle(features.Title()).
		WithModuleNames(features.ModuleNames()).
		WithLogger(logger)
	return &app{cfg: cfg, features: features, store: store, logger: logger}, nil
}

// newProvider picks the agent backend. "auto" prefers OpenRouter, then
// Gemini; nil means the assistant is unavailable.
func newProvider(cfg *config.Config, logger *zap.Logger) cloud.Provider {
	openrouter := func() cloud.Provider {
		return cloud.NewOpenRouterClient(cfg.Agent.OpenRouterKey).
			WithBaseURL(cfg.Agent.OpenRouterURL).
			WithLogger(logger)
	}
	gemini := func() cloud.Provider {
		return cloud.NewGeminiClient(cfg.Agent.GeminiKey).
			WithModel(cfg.Agent.Model).
			WithLogger(logger)
	}

	switch strings.ToLower(cfg.Agent.Provider) {
	case "openrouter":
		return openrouter()
	case "gemini":
		return gemini()
	case "none":
		return nil
	default:
		if cfg.Agent.OpenRouterKey != "" {
			return openrouter()
		}
		if cfg.Agent.GeminiKey != "" {
			return gemini()
		}
		return nil
	}
}

// newAgent builds the assistant over the app's store.
func (a *app) newAgent() *agent.Agent {
	model := a.features.Agent.Model
	if a.cfg.Agent.Model != "" {
		model = a.cfg.Agent.Model
	}
	projectRoot := a.cfg.Resolve(".")
	tools := agent.NewToolset(a.store, a.features.AllowedTools(), projectRoot)

	return agent.New(newProvider(a.cfg, a.logger), tools, agent.Options{
		SystemPrompt: a.features.SystemPrompt(projectRoot),
		Model:        model,
		MaxTokens:    a.features.Agent.MaxTokens,
		MaxTurns:     a.cfg.Agent.MaxTurns,
		Logger:       a.logger,
	})
}

// newServer wires the HTTP server: hub, optional watcher, agent, locales
// and middleware settings. The returned watcher is nil when disabled.
func (a *app) newServer() (*server.Server, *watch.Watcher) {
	h := hub.New(a.logger)

	var w *watch.Watcher
	notifiers := docstore.Notifiers{}
	if a.cfg.Watch.Enabled {
		w = watch.New(a.store.Root(), h).
			WithDebounce(time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond).
			WithLogger(a.logger)
		notifiers = append(notifiers, w.SelfWrites())
	}
	notifiers = append(notifiers, h)
	a.store.WithNotifier(notifiers)

	cors := server.DefaultCORSConfig()
	if len(a.cfg.Server.CORSOrigins) > 0 {
		cors.AllowedOrigins = a.cfg.Server.CORSOrigins
	}

	window := time.Duration(a.cfg.Server.ChatRateWindowSecs) * time.Second
	srv := server.NewServer(a.store, h).
		WithAddr(a.cfg.Addr()).
		WithAgent(a.newAgent()).
		WithLocales(locale.New(a.cfg.Resolve(a.cfg.Paths.LocalesDir))).
		WithPublicConfig(a.features.Public()).
		WithStaticDir(a.cfg.Resolve(a.cfg.Paths.StaticDir)).
		WithCORS(cors).
		WithRateLimiter(server.NewRateLimiter(a.cfg.Server.ChatRateLimit, window)).
		WithLogger(a.logger)
	return srv, w
}
