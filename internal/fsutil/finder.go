// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FindByPatterns walks rootPath and returns the absolute path of every file
// whose root-relative path matches at least one of the given glob patterns.
// The result is sorted and free of duplicates, giving callers a stable file
// universe regardless of walk order.
func FindByPatterns(rootPath string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		panic("patterns must not be empty")
	}

	seen := make(map[string]struct{})
	var files []string

	err := filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Generated output and VCS metadata are never container modules.
			name := d.Name()
			if p != rootPath && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(rootPath, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if Match(pattern, rel) {
				if _, dup := seen[p]; !dup {
					seen[p] = struct{}{}
					files = append(files, p)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Match reports whether a slash-separated relative path matches a glob
// pattern. Patterns use path.Match semantics per segment, plus `**` as a
// full segment matching any number of directories (including none).
func Match(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		// `**` absorbs zero or more leading segments.
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}
