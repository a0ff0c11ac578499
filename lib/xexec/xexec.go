// Package xexec finds executables on $PATH.
package xexec

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func isExecutable(fp string) bool {
	fi, err := os.Stat(fp)
	if err != nil {
		return false
	}
	m := fi.Mode()
	return !m.IsDir() && m&0111 != 0
}

// SearchPath returns every executable in $PATH whose name starts with prefix. Earlier
// directories win when two carry the same name. The result is sorted by name.
func SearchPath(prefix string) ([]string, error) {
	return searchDirs(filepath.SplitList(os.Getenv("PATH")), prefix)
}

func searchDirs(dirs []string, prefix string) ([]string, error) {
	seenDirs := make(map[string]struct{})
	byName := make(map[string]string)
	for _, dir := range dirs {
		if dir == "" {
			// Unix shell semantics.
			dir = "."
		}
		if _, ok := seenDirs[dir]; ok {
			continue
		}
		seenDirs[dir] = struct{}{}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			if _, ok := byName[name]; ok {
				continue
			}
			fp := filepath.Join(dir, name)
			if isExecutable(fp) {
				byName[name] = fp
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	matches := make([]string, 0, len(names))
	for _, name := range names {
		matches = append(matches, byName[name])
	}
	return matches, nil
}
