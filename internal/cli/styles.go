// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles holds the shared command styles bound to one output.
type styles struct {
	Title   lipgloss.Style
	Module  lipgloss.Style
	Node    lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Branch  lipgloss.Style
}

// newStyles builds styles rendering for w. Colors are dropped for non-TTY
// output and when NO_COLOR is set.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(w))

	return styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")), // Cyan
		Module: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")),
		Node: r.NewStyle().
			Foreground(lipgloss.Color("252")),
		Dim: r.NewStyle().
			Foreground(lipgloss.Color("242")),
		Success: r.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true),
		Error: r.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		Branch: r.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}
