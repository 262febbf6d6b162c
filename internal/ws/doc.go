// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ws serves the editor's live websocket connection.
//
// Each connection becomes a hub subscriber with its own bounded send queue
// and a single write pump. Clients may ask for a full tree sync or submit a
// targeted node edit:
//
//	{"type":"request_sync"}
//	{"type":"node_update","file_path":"01_a/content.md","line_number":3,
//	 "old_text":"draft","new_text":"final"}
//
// A successful edit reaches every connection as file_updated; the sender
// additionally receives update_success, or an error event with a readable
// message.
package ws
