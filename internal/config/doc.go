// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the mindmap editor.
//
// Supports TOML, YAML and JSON configuration files, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: server, paths, agent, watcher and logging settings
//   - Features: the editor's features.json (title, module names, agent)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the cli package)
//   - Environment variables (MINDMAP_*, OPENROUTER_API_KEY, GEMINI_API_KEY)
//   - ./mindmap.toml, ./mindmap.yaml, ./mindmap.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	features, err := config.LoadFeatures(cfg.Resolve(cfg.Paths.FeaturesFile))
package config
