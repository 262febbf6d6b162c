// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// mindmap - backend for a local markdown mindmap editor.
package main

import "github.com/jeranaias/mindmap-editor/internal/cli"

func main() {
	cli.Execute()
}
