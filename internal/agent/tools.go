// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/mindmap-editor/internal/cloud"
	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

// Tool names the assistant may call.
const (
	ToolRead  = "Read"
	ToolWrite = "Write"
	ToolEdit  = "Edit"
	ToolGlob  = "Glob"
	ToolGrep  = "Grep"
)

// ErrToolNotAllowed is returned for a tool outside the allow-list.
var ErrToolNotAllowed = errors.New("tool not allowed")

type toolSpec struct {
	description string
	schema      string
	run         func(t *Toolset, ctx context.Context, args toolArgs) (string, error)
}

type toolArgs struct {
	FilePath   string `json:"file_path"`
	Content    string `json:"content"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	LineNumber *int   `json:"line_number"`
	Pattern    string `json:"pattern"`
	Include    string `json:"include"`
}

var toolSpecs = map[string]toolSpec{
	ToolRead: {
		description: "Read a mindmap document. Paths are relative to the mindmap root, e.g. 01_intro/content.md.",
		schema:      `{"type":"object","properties":{"file_path":{"type":"string","description":"document path"}},"required":["file_path"]}`,
		run:         (*Toolset).read,
	},
	ToolWrite: {
		description: "Create or overwrite a mindmap document with the given content.",
		schema:      `{"type":"object","properties":{"file_path":{"type":"string"},"content":{"type":"string"}},"required":["file_path","content"]}`,
		run:         (*Toolset).write,
	},
	ToolEdit: {
		description: "Replace the first occurrence of old_string with new_string in a document, optionally only on line_number (1-based).",
		schema:      `{"type":"object","properties":{"file_path":{"type":"string"},"old_string":{"type":"string"},"new_string":{"type":"string"},"line_number":{"type":"integer"}},"required":["file_path","old_string","new_string"]}`,
		run:         (*Toolset).edit,
	},
	ToolGlob: {
		description: "List mindmap files matching a glob pattern such as **/content.md.",
		schema:      `{"type":"object","properties":{"pattern":{"type":"string"}},"required":["pattern"]}`,
		run:         (*Toolset).glob,
	},
	ToolGrep: {
		description: "Search mindmap files for a regular expression. include optionally restricts the files by glob.",
		schema:      `{"type":"object","properties":{"pattern":{"type":"string"},"include":{"type":"string"}},"required":["pattern"]}`,
		run:         (*Toolset).grep,
	},
}

// Toolset runs the assistant's file tools against the document store.
type Toolset struct {
	store   *docstore.Store
	allowed []string
	prefix  string
}

// NewToolset exposes the allowed tools over store. Unknown names in allowed
// are dropped. projectRoot lets paths written relative to the project
// ("mindmap/01_intro/content.md") resolve inside the store.
func NewToolset(store *docstore.Store, allowed []string, projectRoot string) *Toolset {
	t := &Toolset{store: store}
	seen := map[string]bool{}
	for _, name := range allowed {
		if _, ok := toolSpecs[name]; ok && !seen[name] {
			t.allowed = append(t.allowed, name)
			seen[name] = true
		}
	}
	if projectRoot != "" {
		if abs, err := filepath.Abs(projectRoot); err == nil {
			if rel, err := filepath.Rel(abs, store.Root()); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				t.prefix = filepath.ToSlash(rel) + "/"
			}
		}
	}
	return t
}

// Allowed returns the enabled tool names in allow-list order.
func (t *Toolset) Allowed() []string {
	return append([]string(nil), t.allowed...)
}

// Definitions returns the tool declarations sent to the model.
func (t *Toolset) Definitions() []cloud.Tool {
	defs := make([]cloud.Tool, 0, len(t.allowed))
	for _, name := range t.allowed {
		spec := toolSpecs[name]
		defs = append(defs, cloud.NewTool(name, spec.description, json.RawMessage(spec.schema)))
	}
	return defs
}

func (t *Toolset) isAllowed(name string) bool {
	for _, n := range t.allowed {
		if n == name {
			return true
		}
	}
	return false
}

// Execute runs the named tool with JSON arguments and returns its output.
func (t *Toolset) Execute(ctx context.Context, name, arguments string) (string, error) {
	if !t.isAllowed(name) {
		return "", fmt.Errorf("%w: %s", ErrToolNotAllowed, name)
	}
	var args toolArgs
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	return toolSpecs[name].run(t, ctx, args)
}

// docPath maps a model-supplied path onto the store.
func (t *Toolset) docPath(p string) string {
	if filepath.IsAbs(p) {
		if rel, ok := t.store.Relative(p); ok {
			return rel
		}
		return p
	}
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	if t.prefix != "" {
		p = strings.TrimPrefix(p, t.prefix)
	}
	return p
}

func (t *Toolset) read(_ context.Context, args toolArgs) (string, error) {
	return t.store.Read(t.docPath(args.FilePath))
}

func (t *Toolset) write(ctx context.Context, args toolArgs) (string, error) {
	path := t.docPath(args.FilePath)
	if err := t.store.Write(ctx, path, args.Content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), path), nil
}

func (t *Toolset) edit(ctx context.Context, args toolArgs) (string, error) {
	path := t.docPath(args.FilePath)
	_, err := t.store.ApplyTargetedReplace(ctx, docstore.Replacement{
		Path:    path,
		OldText: args.OldString,
		NewText: args.NewString,
		Line:    args.LineNumber,
	})
	if err != nil {
		return "", err
	}
	return "Updated " + path, nil
}

func (t *Toolset) glob(_ context.Context, args toolArgs) (string, error) {
	files, err := t.store.Glob(t.docPath(args.Pattern), 0)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No files found", nil
	}
	return strings.Join(files, "\n"), nil
}

func (t *Toolset) grep(_ context.Context, args toolArgs) (string, error) {
	matches, err := t.store.Grep(args.Pattern, args.Include, 0)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No matches found", nil
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d:%s\n", m.Path, m.Line, m.Text)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
