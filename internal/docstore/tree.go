// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Node is one directory of the mindmap tree.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Content  string  `json:"content"`
	Children []*Node `json:"children"`
}

// Tree is the full mindmap as served to clients.
type Tree struct {
	Title   string  `json:"title"`
	Modules []*Node `json:"modules"`
}

// File is one document entry of ListFiles.
type File struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Module string `json:"module"`
}

// BuildTree walks the root and returns the current tree. Hidden directories
// and symlinks are skipped. A missing root yields no modules.
func (s *Store) BuildTree() (*Tree, error) {
	tree := &Tree{Title: s.title, Modules: []*Node{}}

	dirs, err := s.subdirs(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return tree, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read root: %w", err)
	}

	for _, name := range dirs {
		node, err := s.buildNode(filepath.Join(s.root, name))
		if err != nil {
			return nil, err
		}
		tree.Modules = append(tree.Modules, node)
	}
	return tree, nil
}

func (s *Store) buildNode(dir string) (*Node, error) {
	id := filepath.Base(dir)
	name, ok := s.names[id]
	if !ok {
		name = id
	}

	content, err := s.readOptional(filepath.Join(dir, DocumentName))
	if err != nil {
		return nil, err
	}

	node := &Node{ID: id, Name: name, Content: content, Children: []*Node{}}

	dirs, err := s.subdirs(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	for _, child := range dirs {
		c, err := s.buildNode(filepath.Join(dir, child))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, c)
	}
	return node, nil
}

// subdirs returns the visible subdirectory names of dir, sorted.
func (s *Store) subdirs(dir string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, info := range infos {
		if !info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// readOptional returns the file content, or "" when it does not exist.
func (s *Store) readOptional(path string) (string, error) {
	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return "", nil
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// ListFiles returns every document under the root, sorted by path. Unlike
// BuildTree it includes documents inside hidden directories.
func (s *Store) ListFiles() ([]File, error) {
	files := []File{}

	err := s.walkFiles(true, func(rel, _ string, info os.FileInfo) bool {
		if info.Name() == DocumentName {
			module, _, _ := strings.Cut(rel, "/")
			files = append(files, File{Path: rel, Name: info.Name(), Module: module})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
