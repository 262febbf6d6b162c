// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mindmap command line.
//
// # Commands
//
//   - serve: run the HTTP/websocket backend until SIGINT or SIGTERM
//   - tree: print the mindmap structure
//   - cat: print one document, rendered as markdown on a terminal
//   - mcp: serve the documents as MCP tools over stdio
//   - version: print build information
//
// Persistent flags (--config, --root, --verbose, --log-format) and the
// serve flags (--host, --port, --watch) are bound through viper, so each
// can also be set as MINDMAP_<NAME> in the environment. Flags win over the
// environment, which wins over the config file.
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
package cli
