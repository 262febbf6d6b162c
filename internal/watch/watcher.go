// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch broadcasts edits made to mindmap documents outside the
// editor, such as saves from a text editor or a git checkout.
//
// The watcher follows the document root recursively with fsnotify, adds
// directories as they appear, and debounces bursts of writes to the same
// file. Writes the store just made itself are recognised by content hash
// and not broadcast a second time.
package watch

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 200 * time.Millisecond

// ErrStarted is returned by Start on a watcher that is already running.
var ErrStarted = errors.New("watcher already started")

// =============================================================================
// WATCHER
// =============================================================================

// Watcher reports external document edits to a notifier.
type Watcher struct {
	root     string
	target   docstore.Notifier
	debounce time.Duration
	logger   *zap.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time // absolute path -> last event
	known   map[string][32]byte  // relative path -> last seen content hash
}

// New creates a watcher over root that reports to target.
func New(root string, target docstore.Notifier) *Watcher {
	return &Watcher{
		root:     filepath.Clean(root),
		target:   target,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		pending:  make(map[string]time.Time),
		known:    make(map[string][32]byte),
	}
}

// WithDebounce sets the quiet period.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// WithLogger sets the logger.
func (w *Watcher) WithLogger(l *zap.Logger) *Watcher {
	w.logger = logging.OrNop(l).Named("watch")
	return w
}

// SelfWrites returns a notifier for the store. Documents it is told about
// are remembered so the matching filesystem event is not reported again.
func (w *Watcher) SelfWrites() docstore.Notifier {
	return docstore.NotifierFunc(func(_ context.Context, path, content string) {
		w.remember(path, content)
	})
}

func (w *Watcher) remember(rel, content string) {
	w.mu.Lock()
	w.known[rel] = sha256.Sum256([]byte(content))
	w.mu.Unlock()
}

// Start begins watching. It returns once the initial directories are
// registered; events are processed until ctx is cancelled or Close is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.fsw != nil {
		return ErrStarted
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root, false); err != nil {
		fsw.Close()
		w.fsw = nil
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processPending(ctx)

	w.logger.Info("WATCH_START", zap.String("root", w.root), zap.Duration("debounce", w.debounce))
	return nil
}

// Close stops watching and waits for the event loops to exit.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// =============================================================================
// EVENT LOOPS
// =============================================================================

// addRecursive registers dir and its visible subdirectories. When queue is
// set, documents already present are queued; they may have been written
// before the directory was watched.
func (w *Watcher) addRecursive(dir string, queue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("WATCH_ADD_FAILED", zap.String("dir", path), zap.Error(err))
			}
			return nil
		}
		if queue && d.Name() == docstore.DocumentName {
			w.queue(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("WATCH_PANIC", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("WATCH_ERROR", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.hidden(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name, true); err != nil {
				w.logger.Debug("WATCH_ADD_FAILED", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	if filepath.Base(event.Name) != docstore.DocumentName {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		w.queue(event.Name)
	}
}

func (w *Watcher) queue(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// processPending reports files that have been quiet for the debounce period.
func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			var ready []string
			w.mu.Lock()
			for path, at := range w.pending {
				if now.Sub(at) >= w.debounce {
					ready = append(ready, path)
					delete(w.pending, path)
				}
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.report(ctx, path)
			}
		}
	}
}

// report reads path and notifies the target if its content is new.
func (w *Watcher) report(ctx context.Context, path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if info.Size() > docstore.MaxDocumentSize {
		w.logger.Warn("WATCH_FILE_TOO_LARGE", zap.String("path", rel), zap.Int64("size", info.Size()))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Debug("WATCH_READ_FAILED", zap.String("path", rel), zap.Error(err))
		return
	}

	sum := sha256.Sum256(data)
	w.mu.Lock()
	prev, seen := w.known[rel]
	w.known[rel] = sum
	w.mu.Unlock()
	if seen && prev == sum {
		return
	}

	w.logger.Info("EXTERNAL_EDIT", zap.String("path", rel), zap.Int("bytes", len(data)))
	w.target.DocumentChanged(ctx, rel, string(data))
}

// hidden reports whether path lies under a dot-directory or is a dot-file.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
