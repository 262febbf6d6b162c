// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the mindmap editor's HTTP API.
//
// Endpoints:
//   - GET  /api/files             - List documents
//   - GET  /api/files/{path}      - Read a document
//   - PUT  /api/files/{path}      - Write a document and broadcast it
//   - GET  /api/tree              - Full mindmap tree
//   - GET  /api/config            - Frontend feature configuration
//   - GET  /api/locales/{locale}  - UI string table
//   - GET  /api/agent/status      - Assistant availability
//   - POST /api/agent/chat        - Assistant chat (SSE, rate limited)
//   - GET  /ws                    - Live updates (websocket)
//   - GET  /health                - Health check
//
// # Key Types
//
//   - Server: routes plus lifecycle (Start, Shutdown)
//   - CORSConfig: cross-origin allowlist
//   - RateLimiter: per-client sliding window
//
// # Usage
//
//	srv := server.NewServer(store, h).
//	    WithAgent(a).
//	    WithLocales(locale.New(dir)).
//	    WithLogger(logger)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
//
// Errors are returned as {"detail": "..."} with a matching status code.
package server
