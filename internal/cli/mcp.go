// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeranaias/mindmap-editor/internal/mcptools"
)

func newMCPCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the mindmap documents over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing the mindmap_tree,
mindmap_list, mindmap_read, mindmap_write and mindmap_replace tools.

Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cfg, logger)
			if err != nil {
				return NewCommandError("mcp", "load features", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcptools.New(a.store, Version)
			return mcptools.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}
