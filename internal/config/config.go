// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mindmap editor configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Filesystem layout
	Paths PathsConfig `toml:"paths" json:"paths" yaml:"paths"`

	// Agent provider settings
	Agent AgentConfig `toml:"agent" json:"agent" yaml:"agent"`

	// External edit watcher
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Logging settings
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP listener and middleware settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host" yaml:"host"`
	Port int    `toml:"port" json:"port" yaml:"port"`

	// CORSOrigins is the browser origin allowlist.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins" yaml:"cors_origins"`

	// ChatRateLimit is the number of agent chat requests allowed per client
	// per ChatRateWindowSecs.
	ChatRateLimit      int `toml:"chat_rate_limit" json:"chat_rate_limit" yaml:"chat_rate_limit"`
	ChatRateWindowSecs int `toml:"chat_rate_window_secs" json:"chat_rate_window_secs" yaml:"chat_rate_window_secs"`
}

// PathsConfig locates the document root and the editor assets.
// Relative paths are resolved against ProjectRoot.
type PathsConfig struct {
	ProjectRoot  string `toml:"project_root" json:"project_root" yaml:"project_root"`
	MindmapDir   string `toml:"mindmap_dir" json:"mindmap_dir" yaml:"mindmap_dir"`
	StaticDir    string `toml:"static_dir" json:"static_dir" yaml:"static_dir"`
	LocalesDir   string `toml:"locales_dir" json:"locales_dir" yaml:"locales_dir"`
	FeaturesFile string `toml:"features_file" json:"features_file" yaml:"features_file"`
}

// AgentConfig selects and configures the AI provider.
type AgentConfig struct {
	// Provider is auto, openrouter, gemini or none.
	Provider string `toml:"provider" json:"provider" yaml:"provider"`

	OpenRouterKey string `toml:"openrouter_key" json:"openrouter_key" yaml:"openrouter_key"`
	OpenRouterURL string `toml:"openrouter_url" json:"openrouter_url" yaml:"openrouter_url"`
	GeminiKey     string `toml:"gemini_key" json:"gemini_key" yaml:"gemini_key"`

	// Model overrides the model named in features.json.
	Model string `toml:"model" json:"model" yaml:"model"`

	// MaxTurns bounds the tool loop of a single chat request.
	MaxTurns int `toml:"max_turns" json:"max_turns" yaml:"max_turns"`
}

// WatchConfig controls the external edit watcher.
type WatchConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	DebounceMS int  `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with the editor's stock layout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
			ChatRateLimit:      10,
			ChatRateWindowSecs: 60,
		},
		Paths: PathsConfig{
			ProjectRoot:  ".",
			MindmapDir:   "mindmap",
			StaticDir:    "editor/static",
			LocalesDir:   "editor/locales",
			FeaturesFile: "editor/config/features.json",
		},
		Agent: AgentConfig{
			Provider:      "auto",
			OpenRouterURL: "https://openrouter.ai/api/v1",
			MaxTurns:      8,
		},
		Watch: WatchConfig{
			Enabled:    false,
			DebounceMS: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults fills zero-value fields from Default.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.CORSOrigins == nil {
		c.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if c.Server.ChatRateLimit == 0 {
		c.Server.ChatRateLimit = d.Server.ChatRateLimit
	}
	if c.Server.ChatRateWindowSecs == 0 {
		c.Server.ChatRateWindowSecs = d.Server.ChatRateWindowSecs
	}

	if c.Paths.ProjectRoot == "" {
		c.Paths.ProjectRoot = d.Paths.ProjectRoot
	}
	if c.Paths.MindmapDir == "" {
		c.Paths.MindmapDir = d.Paths.MindmapDir
	}
	if c.Paths.StaticDir == "" {
		c.Paths.StaticDir = d.Paths.StaticDir
	}
	if c.Paths.LocalesDir == "" {
		c.Paths.LocalesDir = d.Paths.LocalesDir
	}
	if c.Paths.FeaturesFile == "" {
		c.Paths.FeaturesFile = d.Paths.FeaturesFile
	}

	if c.Agent.Provider == "" {
		c.Agent.Provider = d.Agent.Provider
	}
	if c.Agent.OpenRouterURL == "" {
		c.Agent.OpenRouterURL = d.Agent.OpenRouterURL
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = d.Agent.MaxTurns
	}

	if c.Watch.DebounceMS == 0 {
		c.Watch.DebounceMS = d.Watch.DebounceMS
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// LOADING
// =============================================================================

// SearchPaths lists the files Load tries, in order.
var SearchPaths = []string{"mindmap.toml", "mindmap.yaml", "mindmap.yml", "mindmap.json"}

// Load reads the first config file found in SearchPaths (relative to the
// working directory), falling back to defaults. Environment overrides are
// applied last.
func Load() (*Config, error) {
	for _, p := range SearchPaths {
		if _, err := os.Stat(p); err == nil {
			return LoadFromPath(p)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file, choosing the
// decoder by extension. Unknown extensions are decoded as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file over cfg.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// SaveTOML writes cfg to path, creating parent directories.
func SaveTOML(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - MINDMAP_HOST, MINDMAP_PORT: listener address
//   - MINDMAP_ROOT: overrides paths.mindmap_dir
//   - MINDMAP_PROJECT_ROOT: overrides paths.project_root
//   - MINDMAP_WATCH: enables the external edit watcher
//   - MINDMAP_LOG_LEVEL, MINDMAP_LOG_FORMAT: logging
//   - MINDMAP_AGENT_PROVIDER, MINDMAP_AGENT_MODEL: agent selection
//   - OPENROUTER_API_KEY, GEMINI_API_KEY: provider credentials
//   - ANTHROPIC_BASE_URL: an OpenRouter base URL ("/api" is
//     completed to "/api/v1")
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("MINDMAP_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("MINDMAP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if root := os.Getenv("MINDMAP_ROOT"); root != "" {
		c.Paths.MindmapDir = root
	}
	if root := os.Getenv("MINDMAP_PROJECT_ROOT"); root != "" {
		c.Paths.ProjectRoot = root
	}
	if watch := os.Getenv("MINDMAP_WATCH"); watch != "" {
		c.Watch.Enabled = watch == "1" || strings.ToLower(watch) == "true"
	}
	if level := os.Getenv("MINDMAP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("MINDMAP_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if provider := os.Getenv("MINDMAP_AGENT_PROVIDER"); provider != "" {
		c.Agent.Provider = provider
	}
	if model := os.Getenv("MINDMAP_AGENT_MODEL"); model != "" {
		c.Agent.Model = model
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Agent.OpenRouterKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Agent.GeminiKey = key
	}
	if base := os.Getenv("ANTHROPIC_BASE_URL"); base != "" && strings.Contains(base, "openrouter.ai") {
		base = strings.TrimRight(base, "/")
		if strings.HasSuffix(base, "/api") {
			base += "/v1"
		}
		c.Agent.OpenRouterURL = base
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 1-65535", c.Server.Port),
		})
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.cors_origins",
				Message: fmt.Sprintf("invalid origin %q", origin),
			})
		}
	}
	if c.Server.ChatRateLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.chat_rate_limit",
			Message: "must not be negative",
		})
	}
	if c.Server.ChatRateWindowSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.chat_rate_window_secs",
			Message: "must not be negative",
		})
	}

	validProviders := map[string]bool{"auto": true, "openrouter": true, "gemini": true, "none": true}
	if !validProviders[strings.ToLower(c.Agent.Provider)] {
		errs = append(errs, ValidationError{
			Field:   "agent.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: auto, openrouter, gemini, none", c.Agent.Provider),
		})
	}
	if c.Agent.OpenRouterURL != "" {
		if u, err := url.Parse(c.Agent.OpenRouterURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "agent.openrouter_url",
				Message: "must be an http(s) URL",
			})
		}
	}
	if c.Agent.MaxTurns < 0 || c.Agent.MaxTurns > 50 {
		errs = append(errs, ValidationError{
			Field:   "agent.max_turns",
			Message: "must be between 0 and 50",
		})
	}

	if c.Watch.DebounceMS < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "must not be negative",
		})
	}

	validFormats := map[string]bool{"": true, "console": true, "text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be console or json", c.Logging.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

// Resolve returns p joined to the project root unless p is absolute.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	root, err := filepath.Abs(c.Paths.ProjectRoot)
	if err != nil {
		root = c.Paths.ProjectRoot
	}
	return filepath.Join(root, p)
}

// MindmapRoot returns the absolute document root.
func (c *Config) MindmapRoot() string { return c.Resolve(c.Paths.MindmapDir) }

// Addr returns host:port for the listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// String renders the configuration as TOML with credentials masked.
func (c *Config) String() string {
	masked := *c
	masked.Agent.OpenRouterKey = maskKey(c.Agent.OpenRouterKey)
	masked.Agent.GeminiKey = maskKey(c.Agent.GeminiKey)

	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(&masked); err != nil {
		return fmt.Sprintf("error encoding config: %v", err)
	}
	return b.String()
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// IsValidationError reports whether err carries validation failures.
func IsValidationError(err error) bool {
	var ve ValidateErrors
	return errors.As(err, &ve)
}
