// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questFiles() map[string]string {
	return map[string]string{
		"01_adventure/content.md":                   "# Adventure",
		"01_adventure/first_quest/content.md":       "Find the ancient sword\nDefeat the dragon",
		"01_adventure/second_quest/content.md":      "Save the village",
		"01_adventure/second_quest/lair/content.md": "The dragon sleeps here",
		"02_empty/notes.txt":                        "not a document",
	}
}

func TestStore_BuildTree(t *testing.T) {
	store, _, _ := newTestStore(t, questFiles())
	store.WithTitle("Quest Log").WithModuleNames(map[string]string{"01_adventure": "Adventure"})

	got, err := store.BuildTree()
	require.NoError(t, err)

	want := &Tree{
		Title: "Quest Log",
		Modules: []*Node{
			{
				ID: "01_adventure", Name: "Adventure", Content: "# Adventure",
				Children: []*Node{
					{ID: "first_quest", Name: "first_quest", Content: "Find the ancient sword\nDefeat the dragon", Children: []*Node{}},
					{
						ID: "second_quest", Name: "second_quest", Content: "Save the village",
						Children: []*Node{
							{ID: "lair", Name: "lair", Content: "The dragon sleeps here", Children: []*Node{}},
						},
					},
				},
			},
			{ID: "02_empty", Name: "02_empty", Content: "", Children: []*Node{}},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildTree() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_BuildTreeExcludesHiddenDirs(t *testing.T) {
	files := questFiles()
	files[".hidden/content.md"] = "# Hidden"
	files["01_adventure/.git/content.md"] = "# Also hidden"
	store, _, _ := newTestStore(t, files)

	tree, err := store.BuildTree()
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Hidden")
	assert.NotContains(t, string(data), ".git")
	assert.Len(t, tree.Modules, 2)
}

func TestStore_BuildTreeReflectsDisk(t *testing.T) {
	store, _, _ := newTestStore(t, questFiles())

	before, err := store.BuildTree()
	require.NoError(t, err)

	require.NoError(t, store.Write(context.Background(), "00_intro/content.md", "Hello"))

	after, err := store.BuildTree()
	require.NoError(t, err)
	assert.Len(t, after.Modules, len(before.Modules)+1)
	assert.Equal(t, "00_intro", after.Modules[0].ID)
	assert.Equal(t, "Hello", after.Modules[0].Content)
}

func TestStore_BuildTreeMissingRoot(t *testing.T) {
	store := New("/does/not/exist").WithFs(afero.NewMemMapFs())

	tree, err := store.BuildTree()
	require.NoError(t, err)
	assert.Empty(t, tree.Modules)

	data, _ := json.Marshal(tree)
	assert.JSONEq(t, `{"title":"Mindmap","modules":[]}`, string(data))
}

func TestStore_BuildTreeOnDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b_mod", "child"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a_mod"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b_mod", "child", DocumentName), []byte("leaf"), 0o644))

	tree, err := New(root).BuildTree()
	require.NoError(t, err)
	require.Len(t, tree.Modules, 2)
	assert.Equal(t, "a_mod", tree.Modules[0].ID)
	assert.Equal(t, "leaf", tree.Modules[1].Children[0].Content)
}

func TestStore_ListFiles(t *testing.T) {
	store, _, _ := newTestStore(t, questFiles())

	files, err := store.ListFiles()
	require.NoError(t, err)

	want := []File{
		{Path: "01_adventure/content.md", Name: "content.md", Module: "01_adventure"},
		{Path: "01_adventure/first_quest/content.md", Name: "content.md", Module: "01_adventure"},
		{Path: "01_adventure/second_quest/content.md", Name: "content.md", Module: "01_adventure"},
		{Path: "01_adventure/second_quest/lair/content.md", Name: "content.md", Module: "01_adventure"},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("ListFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ListFilesIncludesHidden(t *testing.T) {
	files := questFiles()
	files[".drafts/content.md"] = "draft"
	store, _, _ := newTestStore(t, files)

	got, err := store.ListFiles()
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, File{Path: ".drafts/content.md", Name: "content.md", Module: ".drafts"}, got[0])

	tree, err := store.BuildTree()
	require.NoError(t, err)
	for _, m := range tree.Modules {
		assert.NotEqual(t, ".drafts", m.ID)
	}
}

func TestStore_ListFilesEmptyRoot(t *testing.T) {
	store := New("/nowhere").WithFs(afero.NewMemMapFs())
	files, err := store.ListFiles()
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}
