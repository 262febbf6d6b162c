// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcptools exposes the mindmap document store as MCP tools.
//
// Each tool follows the same shape:
//   - A struct holding the *docstore.Store
//   - Definition() returns the mcp.Tool schema
//   - Handle() runs the call and returns a result
//
// Store failures (traversal, missing file, stale replace) come back as tool
// errors carrying the store's message, not as protocol errors.
//
// # Usage
//
//	s := mcptools.New(store, version)
//	err := mcptools.Serve(ctx, s, os.Stdin, os.Stdout, logger)
package mcptools
