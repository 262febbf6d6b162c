// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSystemPrompt is used when features.json names no prompt.
const DefaultSystemPrompt = "You are a mindmap editor assistant."

// DefaultAllowedTools is the agent tool allow-list when none is configured.
var DefaultAllowedTools = []string{"Read", "Edit", "Write", "Glob", "Grep"}

// Features is the editor's features.json: project title, module display
// names and the agent section. Raw keeps the document as loaded so it can be
// served back to the client verbatim.
type Features struct {
	Project struct {
		Title string `json:"title"`
	} `json:"project"`
	Modules    map[string]string `json:"modules"`
	Dimensions map[string]string `json:"dimensions"`
	Agent      AgentFeatures     `json:"agent"`

	Raw json.RawMessage `json:"-"`
}

// AgentFeatures is the agent section of features.json.
type AgentFeatures struct {
	Model            string   `json:"model"`
	MaxTokens        int      `json:"maxTokens"`
	AllowedTools     []string `json:"allowedTools"`
	SystemPrompt     string   `json:"systemPrompt"`
	SystemPromptFile string   `json:"systemPromptFile"`
}

// DefaultFeatures mirrors the editor's built-in features when no
// features.json exists.
func DefaultFeatures() *Features {
	f := &Features{
		Modules: map[string]string{},
		Dimensions: map[string]string{
			"ui_ux":    "UI/UX",
			"frontend": "Frontend",
			"backend":  "Backend",
			"ai_data":  "AI & Data",
			"specs":    "SPEC Links",
		},
		Agent: AgentFeatures{
			Model:        "claude-haiku-4-5-20251201",
			MaxTokens:    4096,
			AllowedTools: append([]string(nil), DefaultAllowedTools...),
		},
	}
	f.Project.Title = "Mindmap Editor"
	return f
}

// defaultPublicConfig is served by /api/config when features.json is absent.
var defaultPublicConfig = json.RawMessage(`{"mindmap":{"maxFrItems":100,"maxDimensionItems":100,"maxDescriptionLength":200}}`)

// LoadFeatures reads features.json at path. A missing file yields the
// defaults; a malformed one is an error.
func LoadFeatures(path string) (*Features, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultFeatures(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read features file: %w", err)
	}

	f := &Features{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to decode features file %s: %w", path, err)
	}
	f.Raw = json.RawMessage(data)
	return f, nil
}

// Title returns the tree title. An empty project title falls back to
// "Mindmap".
func (f *Features) Title() string {
	if f.Project.Title == "" {
		return "Mindmap"
	}
	return f.Project.Title
}

// ModuleNames returns the id to display-name map, never nil.
func (f *Features) ModuleNames() map[string]string {
	if f.Modules == nil {
		return map[string]string{}
	}
	return f.Modules
}

// Public returns the JSON document served to the client.
func (f *Features) Public() json.RawMessage {
	if len(f.Raw) == 0 {
		return defaultPublicConfig
	}
	return f.Raw
}

// AllowedTools returns the configured allow-list or the default one.
func (f *Features) AllowedTools() []string {
	if len(f.Agent.AllowedTools) == 0 {
		return DefaultAllowedTools
	}
	return f.Agent.AllowedTools
}

// SystemPrompt resolves the agent system prompt: the prompt file relative to
// projectRoot if it exists, then the inline prompt, then the default.
func (f *Features) SystemPrompt(projectRoot string) string {
	if f.Agent.SystemPromptFile != "" {
		p := f.Agent.SystemPromptFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectRoot, p)
		}
		if data, err := os.ReadFile(p); err == nil {
			return string(data)
		}
	}
	if f.Agent.SystemPrompt != "" {
		return f.Agent.SystemPrompt
	}
	return DefaultSystemPrompt
}
