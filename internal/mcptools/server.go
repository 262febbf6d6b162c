// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcptools

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/logging"
)

const instructions = "Tools for reading and editing a markdown mindmap. Each node is a directory " +
	"holding a content.md document. Paths are relative to the mindmap root. " +
	"Edits made here are pushed to any open editor immediately."

// New builds an MCP server exposing the store's documents.
func New(store *docstore.Store, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mindmap",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	tree := NewTreeTool(store)
	s.AddTool(tree.Definition(), tree.Handle)

	list := NewListTool(store)
	s.AddTool(list.Definition(), list.Handle)

	read := NewReadTool(store)
	s.AddTool(read.Definition(), read.Handle)

	write := NewWriteTool(store)
	s.AddTool(write.Definition(), write.Handle)

	replace := NewReplaceTool(store)
	s.AddTool(replace.Definition(), replace.Handle)

	return s
}

// Serve runs s over the given stdio streams until ctx is cancelled or in
// reaches EOF.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("mcp")
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger))

	logger.Info("MCP_START")
	err := stdio.Listen(ctx, in, out)
	logger.Info("MCP_STOP", zap.Error(err))
	return err
}
