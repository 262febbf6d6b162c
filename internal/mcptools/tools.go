// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

// =============================================================================
// TREE
// =============================================================================

// TreeTool handles mindmap_tree.
type TreeTool struct {
	store *docstore.Store
}

// NewTreeTool creates a TreeTool.
func NewTreeTool(store *docstore.Store) *TreeTool {
	return &TreeTool{store: store}
}

// Definition returns the MCP tool definition for mindmap_tree.
func (t *TreeTool) Definition() mcp.Tool {
	return mcp.NewTool("mindmap_tree",
		mcp.WithDescription("Return the whole mindmap as JSON: title plus nested modules, each with id, name, content and children."),
	)
}

// Handle processes the mindmap_tree tool call.
func (t *TreeTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := t.store.BuildTree()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("build tree failed: %v", err)), nil
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// =============================================================================
// LIST
// =============================================================================

// ListTool handles mindmap_list.
type ListTool struct {
	store *docstore.Store
}

// NewListTool creates a ListTool.
func NewListTool(store *docstore.Store) *ListTool {
	return &ListTool{store: store}
}

// Definition returns the MCP tool definition for mindmap_list.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("mindmap_list",
		mcp.WithDescription("List every mindmap document path, relative to the mindmap root."),
		mcp.WithString("pattern",
			mcp.Description("Optional glob filter, e.g. 01_intro/*/content.md or **/content.md"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 200)"),
		),
	)
}

// Handle processes the mindmap_list tool call.
func (t *ListTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 200)

	var paths []string
	if pattern := req.GetString("pattern", ""); pattern != "" {
		matches, err := t.store.Glob(pattern, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid pattern: %v", err)), nil
		}
		paths = matches
	} else {
		files, err := t.store.ListFiles()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		for _, f := range files {
			if limit > 0 && len(paths) >= limit {
				break
			}
			paths = append(paths, f.Path)
		}
	}

	if len(paths) == 0 {
		return mcp.NewToolResultText("No documents found."), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

// =============================================================================
// READ
// =============================================================================

// ReadTool handles mindmap_read.
type ReadTool struct {
	store *docstore.Store
}

// NewReadTool creates a ReadTool.
func NewReadTool(store *docstore.Store) *ReadTool {
	return &ReadTool{store: store}
}

// Definition returns the MCP tool definition for mindmap_read.
func (t *ReadTool) Definition() mcp.Tool {
	return mcp.NewTool("mindmap_read",
		mcp.WithDescription("Read one mindmap document."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path relative to the mindmap root, e.g. 01_intro/content.md"),
		),
	)
}

// Handle processes the mindmap_read tool call.
func (t *ReadTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	content, err := t.store.Read(path)
	if err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultText(content), nil
}

// =============================================================================
// WRITE
// =============================================================================

// WriteTool handles mindmap_write.
type WriteTool struct {
	store *docstore.Store
}

// NewWriteTool creates a WriteTool.
func NewWriteTool(store *docstore.Store) *WriteTool {
	return &WriteTool{store: store}
}

// Definition returns the MCP tool definition for mindmap_write.
func (t *WriteTool) Definition() mcp.Tool {
	return mcp.NewTool("mindmap_write",
		mcp.WithDescription("Replace a mindmap document's full content, creating it and its directories if needed."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path relative to the mindmap root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New markdown content (max 1 MiB)"),
		),
	)
}

// Handle processes the mindmap_write tool call.
func (t *WriteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	content, ok := req.GetArguments()["content"].(string)
	if !ok {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	if err := t.store.Write(ctx, path, content); err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes to %s", len(content), path)), nil
}

// =============================================================================
// REPLACE
// =============================================================================

// ReplaceTool handles mindmap_replace.
type ReplaceTool struct {
	store *docstore.Store
}

// NewReplaceTool creates a ReplaceTool.
func NewReplaceTool(store *docstore.Store) *ReplaceTool {
	return &ReplaceTool{store: store}
}

// Definition returns the MCP tool definition for mindmap_replace.
func (t *ReplaceTool) Definition() mcp.Tool {
	return mcp.NewTool("mindmap_replace",
		mcp.WithDescription(
			"Replace one occurrence of text in a mindmap document. With line, only that "+
				"1-based line is searched; without it the first occurrence in the document is replaced.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path relative to the mindmap root"),
		),
		mcp.WithString("old_text",
			mcp.Required(),
			mcp.Description("Exact text to replace"),
		),
		mcp.WithString("new_text",
			mcp.Required(),
			mcp.Description("Replacement text"),
		),
		mcp.WithNumber("line",
			mcp.Description("1-based line holding old_text"),
		),
	)
}

// Handle processes the mindmap_replace tool call.
func (t *ReplaceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path := req.GetString("path", "")
	oldText, okOld := args["old_text"].(string)
	newText, okNew := args["new_text"].(string)
	if path == "" || !okOld || oldText == "" || !okNew {
		return mcp.NewToolResultError("'path', 'old_text' and 'new_text' are required"), nil
	}

	r := docstore.Replacement{Path: path, OldText: oldText, NewText: newText}
	if _, ok := args["line"].(float64); ok {
		line := intArg(req, "line", 0)
		r.Line = &line
	}

	if _, err := t.store.ApplyTargetedReplace(ctx, r); err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultText("Updated " + path), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// intArg extracts an integer argument, returning def when the key is missing
// or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

// storeError turns a store failure into a tool error the model can act on.
func storeError(err error) *mcp.CallToolResult {
	var serr *docstore.Error
	if errors.As(err, &serr) {
		return mcp.NewToolResultError(serr.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("operation failed: %v", err))
}
