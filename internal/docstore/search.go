// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	// DefaultGlobLimit caps Glob results.
	DefaultGlobLimit = 500

	// DefaultGrepLimit caps Grep results.
	DefaultGrepLimit = 100
)

var errStopWalk = errors.New("stop walk")

// Match is one Grep hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// walkFiles calls fn for every regular file under the root with its
// slash-separated relative path. Temp files are always skipped; hidden
// directories only when hidden is false.
func (s *Store) walkFiles(hidden bool, fn func(rel, full string, info os.FileInfo) bool) error {
	return afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if !hidden && p != s.root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".content-") {
			return nil
		}
		rel, ok := s.Relative(p)
		if !ok {
			return nil
		}
		if !fn(rel, p, info) {
			return errStopWalk
		}
		return nil
	})
}

// Glob returns the files whose relative path matches pattern. A pattern
// without a slash also matches base names; a leading "**/" matches at any
// depth.
func (s *Store) Glob(pattern string, limit int) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if limit <= 0 {
		limit = DefaultGlobLimit
	}

	var out []string
	err := s.walkFiles(false, func(rel, _ string, _ os.FileInfo) bool {
		if globMatch(pattern, rel) {
			out = append(out, rel)
		}
		return len(out) < limit
	})
	if err != nil && err != errStopWalk {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func globMatch(pattern, rel string) bool {
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		parts := strings.Split(rel, "/")
		for i := range parts {
			if ok, _ := path.Match(rest, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
		return false
	}
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

// Grep returns the lines matching the regular expression pattern in files
// whose path matches include (all files when include is empty).
func (s *Store) Grep(pattern, include string, limit int) ([]Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if limit <= 0 {
		limit = DefaultGrepLimit
	}

	var out []Match
	var readErr error
	err = s.walkFiles(false, func(rel, full string, info os.FileInfo) bool {
		if include != "" && !globMatch(include, rel) {
			return true
		}
		if info.Size() > MaxDocumentSize {
			return true
		}
		f, err := s.fs.Open(full)
		if err != nil {
			readErr = fmt.Errorf("open %s: %w", rel, err)
			return false
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), MaxDocumentSize)
		for n := 1; sc.Scan(); n++ {
			if re.MatchString(sc.Text()) {
				out = append(out, Match{Path: rel, Line: n, Text: sc.Text()})
				if len(out) >= limit {
					return false
				}
			}
		}
		return true
	})
	if readErr != nil {
		return nil, readErr
	}
	if err != nil && err != errStopWalk {
		return nil, err
	}
	return out, nil
}
