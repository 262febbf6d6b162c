// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package docstore owns the directory of markdown documents behind the
// mindmap editor.
//
// Every path is resolved lexically against the store root and rejected with
// ErrAccessDenied before any filesystem call when it would escape the root.
// Successful writes and targeted replacements are reported to the injected
// Notifier so live subscribers see the new content.
//
// # Key Types
//
//   - Store: read, write, tree building and targeted replacement
//   - Node: one directory of the mindmap tree
//   - Error: typed failure carrying one of the sentinel kinds
//
// # Usage
//
//	store := docstore.New("/srv/mindmap").
//	    WithNotifier(hub).
//	    WithTitle("Roadmap")
//	tree, err := store.BuildTree()
package docstore
