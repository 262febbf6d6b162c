// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testRoot = "/srv/mindmap"

// recordingFs counts every call that reaches the filesystem.
type recordingFs struct {
	afero.Fs
	mu    sync.Mutex
	calls []string
}

func (r *recordingFs) record(op, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+" "+name)
}

func (r *recordingFs) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingFs) Create(name string) (afero.File, error) {
	r.record("create", name)
	return r.Fs.Create(name)
}

func (r *recordingFs) Mkdir(name string, perm os.FileMode) error {
	r.record("mkdir", name)
	return r.Fs.Mkdir(name, perm)
}

func (r *recordingFs) MkdirAll(name string, perm os.FileMode) error {
	r.record("mkdirall", name)
	return r.Fs.MkdirAll(name, perm)
}

func (r *recordingFs) Open(name string) (afero.File, error) {
	r.record("open", name)
	return r.Fs.Open(name)
}

func (r *recordingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	r.record("openfile", name)
	return r.Fs.OpenFile(name, flag, perm)
}

func (r *recordingFs) Remove(name string) error {
	r.record("remove", name)
	return r.Fs.Remove(name)
}

func (r *recordingFs) RemoveAll(name string) error {
	r.record("removeall", name)
	return r.Fs.RemoveAll(name)
}

func (r *recordingFs) Rename(oldname, newname string) error {
	r.record("rename", oldname)
	return r.Fs.Rename(oldname, newname)
}

func (r *recordingFs) Stat(name string) (os.FileInfo, error) {
	r.record("stat", name)
	return r.Fs.Stat(name)
}

func (r *recordingFs) Chmod(name string, mode os.FileMode) error {
	r.record("chmod", name)
	return r.Fs.Chmod(name, mode)
}

func (r *recordingFs) Chown(name string, uid, gid int) error {
	r.record("chown", name)
	return r.Fs.Chown(name, uid, gid)
}

func (r *recordingFs) Chtimes(name string, atime, mtime time.Time) error {
	r.record("chtimes", name)
	return r.Fs.Chtimes(name, atime, mtime)
}

type change struct {
	path    string
	content string
}

// recorder is a Notifier that keeps every change.
type recorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *recorder) DocumentChanged(_ context.Context, path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{path, content})
}

func (r *recorder) Changes() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}

func newTestStore(t *testing.T, files map[string]string) (*Store, afero.Fs, *recorder) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		full := testRoot + "/" + p
		require.NoError(t, fs.MkdirAll(path.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fs, full, []byte(content), 0o644))
	}
	require.NoError(t, fs.MkdirAll(testRoot, 0o755))

	rec := &recorder{}
	store := New(testRoot).WithFs(fs).WithNotifier(rec)
	return store, fs, rec
}

func lineNo(n int) *int { return &n }

// =============================================================================
// CONTAINMENT
// =============================================================================

func TestStore_TraversalNeverTouchesFilesystem(t *testing.T) {
	paths := []string{
		"../secret.md",
		"../../etc/passwd",
		"a/../../outside/content.md",
		"01_adventure/../../x",
		"/etc/passwd",
		"..",
		"a/b/../../../c",
		"bad\x00name",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			rfs := &recordingFs{Fs: afero.NewMemMapFs()}
			rec := &recorder{}
			store := New(testRoot).WithFs(rfs).WithNotifier(rec)

			_, err := store.Read(p)
			assert.ErrorIs(t, err, ErrAccessDenied)

			err = store.Write(context.Background(), p, "pwned")
			assert.ErrorIs(t, err, ErrAccessDenied)

			_, err = store.ApplyTargetedReplace(context.Background(), Replacement{Path: p, OldText: "a", NewText: "b"})
			assert.ErrorIs(t, err, ErrAccessDenied)

			assert.Empty(t, rfs.Calls(), "filesystem must not be touched")
			assert.Empty(t, rec.Changes())
		})
	}
}

func TestStore_ContainedPathsResolve(t *testing.T) {
	store := New(testRoot)

	tests := []struct {
		in   string
		want string
	}{
		{"content.md", testRoot + "/content.md"},
		{"a/b/content.md", testRoot + "/a/b/content.md"},
		{"a/../b/content.md", testRoot + "/b/content.md"},
		{"./a//content.md", testRoot + "/a/content.md"},
		{"", testRoot},
	}
	for _, tt := range tests {
		got, err := store.resolve(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStore_SiblingPrefixIsDenied(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	// "/srv/mindmap-private" shares the root's string prefix.
	_, err := store.Read("../mindmap-private/content.md")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestStore_SymlinkEscapeIsDenied(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "mindmap")
	secret := filepath.Join(base, "secret")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "01_intro"), 0o755))
	require.NoError(t, os.MkdirAll(secret, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(secret, "key.txt"), []byte("TOP-SECRET"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "01_intro", "content.md"), []byte("Intro"), 0o644))

	if err := os.Symlink(secret, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(secret, "key.txt"), filepath.Join(root, "key.md")))
	require.NoError(t, os.Symlink(filepath.Join(base, "gone"), filepath.Join(root, "dangling")))
	require.NoError(t, os.Symlink(filepath.Join(root, "01_intro"), filepath.Join(root, "alias")))

	store := New(root)
	ctx := context.Background()

	_, err := store.Read("link/key.txt")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = store.Read("key.md")
	assert.ErrorIs(t, err, ErrAccessDenied)

	err = store.Write(ctx, "link/pwned.txt", "x")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, statErr := os.Stat(filepath.Join(secret, "pwned.txt"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	err = store.Write(ctx, "link/new/content.md", "x")
	assert.ErrorIs(t, err, ErrAccessDenied)
	err = store.Write(ctx, "dangling/content.md", "x")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = store.ApplyTargetedReplace(ctx, Replacement{Path: "key.md", OldText: "TOP", NewText: "x"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	// Links that stay inside the root still work.
	got, err := store.Read("alias/content.md")
	require.NoError(t, err)
	assert.Equal(t, "Intro", got)
	require.NoError(t, store.Write(ctx, "fresh/content.md", "new"))
}

// =============================================================================
// READ / WRITE
// =============================================================================

func TestStore_Read(t *testing.T) {
	store, _, _ := newTestStore(t, map[string]string{
		"01_adventure/content.md": "# Adventure",
	})

	got, err := store.Read("01_adventure/content.md")
	require.NoError(t, err)
	assert.Equal(t, "# Adventure", got)

	_, err = store.Read("missing/content.md")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "File not found: missing/content.md", err.Error())

	_, err = store.Read("01_adventure")
	require.ErrorIs(t, err, ErrNotAFile)
	assert.Equal(t, "Not a file: 01_adventure", err.Error())
}

func TestStore_WriteRoundTrip(t *testing.T) {
	store, _, rec := newTestStore(t, nil)
	ctx := context.Background()

	content := "# Héllo 世界\n\n- emoji 🚀\r\n- trailing\n"
	require.NoError(t, store.Write(ctx, "new/deep/content.md", content))

	got, err := store.Read("new/deep/content.md")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, change{"new/deep/content.md", content}, changes[0])
}

func TestStore_WriteTwiceBroadcastsTwice(t *testing.T) {
	store, _, rec := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "a/content.md", "same"))
	require.NoError(t, store.Write(ctx, "a/content.md", "same"))

	got, err := store.Read("a/content.md")
	require.NoError(t, err)
	assert.Equal(t, "same", got)
	assert.Len(t, rec.Changes(), 2)
}

func TestStore_WriteSizeLimit(t *testing.T) {
	store, fs, rec := newTestStore(t, nil)
	ctx := context.Background()

	exact := strings.Repeat("a", MaxDocumentSize)
	require.NoError(t, store.Write(ctx, "a/content.md", exact))

	over := exact + "b"
	err := store.Write(ctx, "b/content.md", over)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Contains(t, err.Error(), "too large")

	exists, _ := afero.Exists(fs, testRoot+"/b/content.md")
	assert.False(t, exists)
	assert.Len(t, rec.Changes(), 1)
}

func TestStore_WriteSizeCountsBytes(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	// 3-byte runes: fewer runes than the cap, more bytes.
	content := strings.Repeat("世", MaxDocumentSize/3+1)
	err := store.Write(context.Background(), "a/content.md", content)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestStore_WriteDirectoryTarget(t *testing.T) {
	store, _, _ := newTestStore(t, map[string]string{
		"01_adventure/content.md": "x",
	})

	err := store.Write(context.Background(), "01_adventure", "x")
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	store, fs, _ := newTestStore(t, nil)
	require.NoError(t, store.Write(context.Background(), "a/content.md", "body"))

	infos, err := afero.ReadDir(fs, testRoot+"/a")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, DocumentName, infos[0].Name())
}

// =============================================================================
// TARGETED REPLACE
// =============================================================================

func TestStore_ApplyTargetedReplace(t *testing.T) {
	const doc = "Find the sword\nDefeat the dragon\nFind the sword again"

	tests := []struct {
		name     string
		old, new string
		line     *int
		want     string
		wantErr  error
		wantMsg  string
	}{
		{
			name: "line scoped",
			old:  "sword", new: "shield", line: lineNo(3),
			want: "Find the sword\nDefeat the dragon\nFind the shield again",
		},
		{
			name: "first match without line",
			old:  "sword", new: "shield",
			want: "Find the shield\nDefeat the dragon\nFind the sword again",
		},
		{
			name: "only first occurrence within line",
			old:  "the", new: "a", line: lineNo(2),
			want: "Find the sword\nDefeat a dragon\nFind the sword again",
		},
		{
			name: "mismatch at line",
			old:  "dragon", new: "x", line: lineNo(1),
			wantErr: ErrTextMismatch,
			wantMsg: "Text not found at line 1. The file may have been modified.",
		},
		{
			name: "mismatch in file",
			old:  "wizard", new: "x",
			wantErr: ErrTextMismatch,
			wantMsg: "Text not found in file. The file may have been modified.",
		},
		{
			name: "line past end",
			old:  "x", new: "y", line: lineNo(4),
			wantErr: ErrInvalidLine,
			wantMsg: "Invalid line number: 4. File has 3 lines.",
		},
		{
			name: "line zero",
			old:  "x", new: "y", line: lineNo(0),
			wantErr: ErrInvalidLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, rec := newTestStore(t, map[string]string{"q/content.md": doc})

			got, err := store.ApplyTargetedReplace(context.Background(), Replacement{
				Path: "q/content.md", OldText: tt.old, NewText: tt.new, Line: tt.line,
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, err.Error())
				}
				current, _ := store.Read("q/content.md")
				assert.Equal(t, doc, current, "file must be untouched")
				assert.Empty(t, rec.Changes())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			current, _ := store.Read("q/content.md")
			assert.Equal(t, tt.want, current)
			require.Len(t, rec.Changes(), 1)
			assert.Equal(t, tt.want, rec.Changes()[0].content)
		})
	}
}

func TestStore_ApplyTargetedReplaceMissingFile(t *testing.T) {
	store, _, _ := newTestStore(t, nil)

	_, err := store.ApplyTargetedReplace(context.Background(), Replacement{
		Path: "nope/content.md", OldText: "a", NewText: "b",
	})
	require.ErrorIs(t, err, ErrNotFound)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "nope/content.md", se.Path)
}

func TestStore_ApplyTargetedReplacePreservesLineEndings(t *testing.T) {
	store, _, _ := newTestStore(t, map[string]string{"q/content.md": "one\r\ntwo\r\n"})

	got, err := store.ApplyTargetedReplace(context.Background(), Replacement{
		Path: "q/content.md", OldText: "two", NewText: "2", Line: lineNo(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "one\r\n2\r\n", got)
}
