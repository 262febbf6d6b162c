// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DocumentName is the conventional document file inside each directory.
	DocumentName = "content.md"

	// MaxDocumentSize is the largest document Write accepts, in bytes.
	MaxDocumentSize = 1024 * 1024

	dirPerm  = 0o755
	filePerm = 0o644
)

// =============================================================================
// NOTIFICATION
// =============================================================================

// Notifier is told about every document the store persists.
type Notifier interface {
	DocumentChanged(ctx context.Context, path, content string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, path, content string)

// DocumentChanged calls f.
func (f NotifierFunc) DocumentChanged(ctx context.Context, path, content string) {
	f(ctx, path, content)
}

// Notifiers fans a change out to several notifiers in order.
type Notifiers []Notifier

// DocumentChanged notifies each non-nil notifier.
func (ns Notifiers) DocumentChanged(ctx context.Context, path, content string) {
	for _, n := range ns {
		if n != nil {
			n.DocumentChanged(ctx, path, content)
		}
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store serves the documents under a single root directory.
type Store struct {
	fs       afero.Fs
	root     string
	title    string
	names    map[string]string
	notifier Notifier
	logger   *zap.Logger
}

// New creates a Store rooted at root on the OS filesystem.
func New(root string) *Store {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &Store{
		fs:     afero.NewOsFs(),
		root:   abs,
		title:  "Mindmap",
		names:  map[string]string{},
		logger: zap.NewNop(),
	}
}

// WithFs replaces the backing filesystem.
func (s *Store) WithFs(fs afero.Fs) *Store {
	s.fs = fs
	return s
}

// WithNotifier sets the change notifier.
func (s *Store) WithNotifier(n Notifier) *Store {
	s.notifier = n
	return s
}

// WithLogger sets the logger.
func (s *Store) WithLogger(l *zap.Logger) *Store {
	s.logger = logging.OrNop(l).Named("docstore")
	return s
}

// WithTitle sets the tree title.
func (s *Store) WithTitle(title string) *Store {
	s.title = title
	return s
}

// WithModuleNames sets the directory id to display name map.
func (s *Store) WithModuleNames(names map[string]string) *Store {
	if names == nil {
		names = map[string]string{}
	}
	s.names = names
	return s
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Fs returns the backing filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Title returns the tree title.
func (s *Store) Title() string {
	return s.title
}

// resolve maps a client path to an absolute path inside the root. Lexical
// escapes are rejected before any filesystem access; on the OS filesystem
// the path is then checked again with symlinks followed.
func (s *Store) resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		s.logger.Warn("PATH_TRAVERSAL_BLOCKED", zap.String("path", rel))
		return "", newError(ErrAccessDenied, rel)
	}

	full := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		s.logger.Warn("PATH_TRAVERSAL_BLOCKED", zap.String("path", rel))
		return "", newError(ErrAccessDenied, rel)
	}
	if !s.linksWithinRoot(full) {
		s.logger.Warn("SYMLINK_ESCAPE_BLOCKED", zap.String("path", rel))
		return "", newError(ErrAccessDenied, rel)
	}
	return full, nil
}

// linksWithinRoot follows symlinks on the deepest existing ancestor of full
// and reports whether the result stays under the resolved root. Only the OS
// filesystem has symlinks to follow.
func (s *Store) linksWithinRoot(full string) bool {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return true
	}
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		// No root, so nothing below it exists yet.
		return true
	}

	for p := full; ; {
		if _, err := os.Lstat(p); err == nil {
			real, err := filepath.EvalSymlinks(p)
			if err != nil {
				// Dangling link.
				return false
			}
			return real == root || strings.HasPrefix(real, root+string(filepath.Separator))
		}
		parent := filepath.Dir(p)
		if parent == p {
			return true
		}
		p = parent
	}
}

// Relative returns the slash-separated path of abs under the root, or false
// when abs lies outside it.
func (s *Store) Relative(abs string) (string, bool) {
	rel, err := filepath.Rel(s.root, filepath.Clean(abs))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// stat reports whether full exists and is a directory. A missing path, or a
// path running through a regular file, is ErrNotFound.
func (s *Store) stat(rel, full string) (os.FileInfo, error) {
	info, err := s.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, newError(ErrNotFound, rel)
		}
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	return info, nil
}

// =============================================================================
// READ / WRITE
// =============================================================================

// Read returns the content of the document at rel.
func (s *Store) Read(rel string) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := s.stat(rel, full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", newError(ErrNotAFile, rel)
	}

	data, err := afero.ReadFile(s.fs, full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

// Write replaces the document at rel with content, creating parent
// directories, then notifies subscribers.
func (s *Store) Write(ctx context.Context, rel, content string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}

	if len(content) > MaxDocumentSize {
		s.logger.Warn("FILE_SIZE_LIMIT_EXCEEDED",
			zap.String("path", rel),
			zap.Int("bytes", len(content)),
		)
		return newError(ErrPayloadTooLarge, rel)
	}

	if info, err := s.fs.Stat(full); err == nil && info.IsDir() {
		return newError(ErrNotAFile, rel)
	}

	if err := s.persist(full, content); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}

	s.logger.Info("FILE_WRITTEN", zap.String("path", rel), zap.Int("bytes", len(content)))
	s.notify(ctx, rel, content)
	return nil
}

// persist writes content next to full and renames it into place.
func (s *Store) persist(full, content string) error {
	dir := filepath.Dir(full)
	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, ".content-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Chmod(tmpName, filePerm); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, full); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) notify(ctx context.Context, rel, content string) {
	if s.notifier == nil {
		return
	}
	s.notifier.DocumentChanged(ctx, rel, content)
}

// =============================================================================
// TARGETED REPLACE
// =============================================================================

// Replacement describes a single-occurrence substitution. Line is 1-based;
// nil means the first occurrence anywhere in the document.
type Replacement struct {
	Path    string
	OldText string
	NewText string
	Line    *int
}

// ApplyTargetedReplace substitutes r.OldText with r.NewText once, persists the
// result, notifies subscribers and returns the new content.
//
// With a line number only that line is searched, so an identical string
// elsewhere in the document is left alone. Without one the first occurrence
// in the whole document is replaced, which may not be the one the caller
// meant when the text is short and common.
func (s *Store) ApplyTargetedReplace(ctx context.Context, r Replacement) (string, error) {
	full, err := s.resolve(r.Path)
	if err != nil {
		return "", err
	}

	info, err := s.stat(r.Path, full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", newError(ErrNotAFile, r.Path)
	}

	data, err := afero.ReadFile(s.fs, full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.Path, err)
	}
	content := string(data)

	var updated string
	if r.Line != nil {
		lines := strings.Split(content, "\n")
		idx := *r.Line - 1
		if idx < 0 || idx >= len(lines) {
			return "", &Error{Kind: ErrInvalidLine, Path: r.Path, Line: *r.Line, Lines: len(lines)}
		}
		if !strings.Contains(lines[idx], r.OldText) {
			return "", &Error{Kind: ErrTextMismatch, Path: r.Path, Line: *r.Line}
		}
		lines[idx] = strings.Replace(lines[idx], r.OldText, r.NewText, 1)
		updated = strings.Join(lines, "\n")
	} else {
		if !strings.Contains(content, r.OldText) {
			return "", newError(ErrTextMismatch, r.Path)
		}
		updated = strings.Replace(content, r.OldText, r.NewText, 1)
	}

	if err := s.persist(full, updated); err != nil {
		return "", fmt.Errorf("write %s: %w", r.Path, err)
	}

	line := 0
	if r.Line != nil {
		line = *r.Line
	}
	s.logger.Info("NODE_UPDATED", zap.String("path", r.Path), zap.Int("line", line))
	s.notify(ctx, r.Path, updated)
	return updated, nil
}
