// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCatCommand(v *viper.Viper) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a mindmap document",
		Long: `Print a document by its path relative to the mindmap root, e.g.

  mindmap cat 01_intro/content.md

Output to a terminal is rendered as markdown; piped output is raw.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: cat takes exactly one path", errUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return NewCommandError("cat", "load features", err)
			}
			content, err := a.store.Read(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw || !isTerminal(out) {
				_, err = io.WriteString(out, content)
				return err
			}
			return renderMarkdown(out, content)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the markdown source even on a terminal")
	return cmd
}

// renderMarkdown renders content with glamour sized to w.
func renderMarkdown(w io.Writer, content string) error {
	style := glamour.WithAutoStyle()
	if !colorsEnabled(w) {
		style = glamour.WithStandardStyle("notty")
	}

	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(terminalWidth(w)-4),
	)
	if err != nil {
		return err
	}
	rendered, err := r.Render(content)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, strings.TrimRight(rendered, "\n")+"\n")
	return err
}
