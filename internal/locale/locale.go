// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package locale serves the editor's UI string tables.
//
// Tables are JSON files named after their language tag ("en.json",
// "zh-TW.json"). A request for a tag without its own file falls back to a
// table for the same base language, then to English, then to an empty
// object.
package locale

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"
)

// Fallback is the table used when nothing closer exists.
const Fallback = "en"

// ErrInvalidLocale is returned for tags outside the "xx" / "xx-YY" form.
var ErrInvalidLocale = errors.New("Invalid locale format")

var tagPattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// Store reads locale tables from a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates a Store over dir on the OS filesystem.
func New(dir string) *Store {
	return &Store{fs: afero.NewOsFs(), dir: dir}
}

// WithFs replaces the backing filesystem.
func (s *Store) WithFs(fs afero.Fs) *Store {
	s.fs = fs
	return s
}

// Valid reports whether tag has the accepted form.
func Valid(tag string) bool {
	return tagPattern.MatchString(tag)
}

// Lookup returns the raw JSON table for tag.
func (s *Store) Lookup(tag string) (json.RawMessage, error) {
	if !Valid(tag) {
		return nil, ErrInvalidLocale
	}

	for _, name := range s.candidates(tag) {
		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name+".json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("locale %s is not valid JSON", name)
		}
		return json.RawMessage(data), nil
	}
	return json.RawMessage(`{}`), nil
}

// candidates lists table names to try, best first.
func (s *Store) candidates(tag string) []string {
	out := []string{tag}
	if base := s.sameBase(tag); base != "" && base != tag {
		out = append(out, base)
	}
	if tag != Fallback {
		out = append(out, Fallback)
	}
	return out
}

// sameBase returns the available table sharing tag's base language,
// preferring the bare base ("zh") over regional variants.
func (s *Store) sameBase(tag string) string {
	want, _ := language.Make(tag).Base()

	var matches []string
	for _, name := range s.Available() {
		if name == tag {
			continue
		}
		if b, _ := language.Make(name).Base(); b == want {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches[0]
}

// Available lists the tags that have a table, sorted.
func (s *Store) Available() []string {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil
	}
	var tags []string
	for _, info := range infos {
		name, ok := strings.CutSuffix(info.Name(), ".json")
		if ok && !info.IsDir() && Valid(name) {
			tags = append(tags, name)
		}
	}
	return tags
}
