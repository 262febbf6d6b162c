// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/config"
	"github.com/jeranaias/mindmap-editor/internal/logging"
	"github.com/jeranaias/mindmap-editor/internal/server"
)

// Version information (set at build time)
var (
	Version   = server.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Viper keys shared by flags and MINDMAP_* environment variables.
const (
	keyConfig    = "config"
	keyRoot      = "root"
	keyVerbose   = "verbose"
	keyLogFormat = "log-format"
	keyHost      = "host"
	keyPort      = "port"
	keyWatch     = "watch"
)

// Execute runs the root command and exits with a status matching the error.
func Execute() {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(ExitCodeFor(err))
	}
}

// NewRootCommand builds the mindmap command tree with its own viper
// instance, so commands can be built more than once (tests do this).
func NewRootCommand() *cobra.Command {
	return newRootCommand(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MINDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "mindmap",
		Short: "Local markdown mindmap editor backend",
		Long: `mindmap serves a directory of markdown documents as a live mindmap.

Each node is a directory holding a content.md file. The server exposes the
tree over HTTP, pushes edits to every open editor over a websocket, and
relays chat requests to an AI assistant that can edit the documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(keyConfig, "", "config file (default: ./mindmap.{toml,yaml,json})")
	pf.String(keyRoot, "", "mindmap document root (overrides paths.mindmap_dir)")
	pf.BoolP(keyVerbose, "v", false, "enable debug logging")
	pf.String(keyLogFormat, "", "log format: console or json")
	for _, key := range []string{keyConfig, keyRoot, keyVerbose, keyLogFormat} {
		_ = v.BindPFlag(key, pf.Lookup(key))
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	root.AddCommand(
		newServeCommand(v),
		newTreeCommand(v),
		newCatCommand(v),
		newMCPCommand(v),
		newVersionCommand(),
	)
	return root
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig reads the config file named by --config (or the default search
// paths) and layers flag and environment overrides on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := v.GetString(keyConfig); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v.IsSet(keyRoot) {
		cfg.Paths.MindmapDir = v.GetString(keyRoot)
	}
	if v.IsSet(keyLogFormat) {
		cfg.Logging.Format = v.GetString(keyLogFormat)
	}
	if v.IsSet(keyHost) {
		cfg.Server.Host = v.GetString(keyHost)
	}
	if v.IsSet(keyPort) {
		cfg.Server.Port = v.GetInt(keyPort)
	}
	if v.IsSet(keyWatch) {
		cfg.Watch.Enabled = v.GetBool(keyWatch)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr so stdout
// stays free for command output and the MCP stream.
func newLogger(v *viper.Viper, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: v.GetBool(keyVerbose),
	})
}

// setup loads config and logger for a command.
func setup(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(v, cfg)
	if err != nil {
		return nil, nil, errors.Join(errUsage, err)
	}
	return cfg, logger, nil
}
