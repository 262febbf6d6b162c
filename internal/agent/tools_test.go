// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

func TestToolset_AllowList(t *testing.T) {
	ts := NewToolset(newStore(t), []string{"Edit", "Bash", "Read", "Edit"}, "")
	assert.Equal(t, []string{"Edit", "Read"}, ts.Allowed())

	defs := ts.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "Edit", defs[0].Function.Name)
	assert.True(t, json.Valid(defs[0].Function.Parameters))

	_, err := ts.Execute(context.Background(), "Bash", `{}`)
	assert.ErrorIs(t, err, ErrToolNotAllowed)
}

func TestToolset_Execute(t *testing.T) {
	store := newStore(t)
	ts := NewToolset(store, []string{ToolRead, ToolWrite, ToolEdit, ToolGlob, ToolGrep}, "/proj")
	ctx := context.Background()

	out, err := ts.Execute(ctx, ToolWrite, `{"file_path":"02_next/content.md","content":"Second world"}`)
	require.NoError(t, err)
	assert.Equal(t, "Wrote 12 bytes to 02_next/content.md", out)

	out, err = ts.Execute(ctx, ToolRead, `{"file_path":"/proj/mindmap/02_next/content.md"}`)
	require.NoError(t, err)
	assert.Equal(t, "Second world", out)

	out, err = ts.Execute(ctx, ToolEdit, `{"file_path":"./02_next/content.md","old_string":"world","new_string":"node","line_number":1}`)
	require.NoError(t, err)
	assert.Equal(t, "Updated 02_next/content.md", out)

	out, err = ts.Execute(ctx, ToolGlob, `{"pattern":"**/content.md"}`)
	require.NoError(t, err)
	assert.Equal(t, "01_intro/content.md\n02_next/content.md", out)

	out, err = ts.Execute(ctx, ToolGrep, `{"pattern":"node"}`)
	require.NoError(t, err)
	assert.Equal(t, "02_next/content.md:1:Second node", out)

	out, err = ts.Execute(ctx, ToolGrep, `{"pattern":"absent"}`)
	require.NoError(t, err)
	assert.Equal(t, "No matches found", out)
}

func TestToolset_Containment(t *testing.T) {
	ts := NewToolset(newStore(t), []string{ToolRead, ToolWrite}, "/proj")
	ctx := context.Background()

	for _, p := range []string{"../secrets.txt", "/etc/passwd", "mindmap/../../etc/passwd"} {
		args, _ := json.Marshal(map[string]string{"file_path": p})
		_, err := ts.Execute(ctx, ToolRead, string(args))
		assert.ErrorIs(t, err, docstore.ErrAccessDenied, p)
	}

	_, err := ts.Execute(ctx, ToolRead, `{not json`)
	assert.Error(t, err)
}
