// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Match with errors.Is.
var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
	ErrNotAFile        = errors.New("not a file")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidLine     = errors.New("invalid line number")
	ErrTextMismatch    = errors.New("text mismatch")
)

// Error is a store failure. Error() renders the message shown to editor
// clients.
type Error struct {
	Kind  error
	Path  string
	Line  int
	Lines int
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrAccessDenied:
		return "Access denied"
	case ErrNotFound:
		return fmt.Sprintf("File not found: %s", e.Path)
	case ErrNotAFile:
		return fmt.Sprintf("Not a file: %s", e.Path)
	case ErrPayloadTooLarge:
		return fmt.Sprintf("File too large. Max size: %d bytes", MaxDocumentSize)
	case ErrInvalidLine:
		return fmt.Sprintf("Invalid line number: %d. File has %d lines.", e.Line, e.Lines)
	case ErrTextMismatch:
		if e.Line > 0 {
			return fmt.Sprintf("Text not found at line %d. The file may have been modified.", e.Line)
		}
		return "Text not found in file. The file may have been modified."
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, path string) *Error {
	return &Error{Kind: kind, Path: path}
}
