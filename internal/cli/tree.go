// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

func newTreeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the mindmap structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return NewCommandError("tree", "load features", err)
			}
			t, err := a.store.BuildTree()
			if err != nil {
				return NewCommandError("tree", "read mindmap", err)
			}
			return renderTree(cmd.OutOrStdout(), t)
		},
	}
}

// renderTree writes t as an indented tree.
func renderTree(w io.Writer, t *docstore.Tree) error {
	s := newStyles(w)

	root := tree.Root(t.Title).
		RootStyle(s.Title).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(s.Branch)
	for _, m := range t.Modules {
		root.Child(nodeTree(m, s, s.Module))
	}
	if len(t.Modules) == 0 {
		root.Child(s.Dim.Render("(empty)"))
	}

	_, err := fmt.Fprintln(w, root.String())
	return err
}

func nodeTree(n *docstore.Node, s styles, style lipgloss.Style) any {
	label := style.Render(n.Name)
	if n.Name != n.ID {
		label += " " + s.Dim.Render("("+n.ID+")")
	}
	if len(n.Children) == 0 {
		return label
	}

	sub := tree.Root(label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(s.Branch)
	for _, c := range n.Children {
		sub.Child(nodeTree(c, s, s.Node))
	}
	return sub
}
