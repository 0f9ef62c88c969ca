package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/fsutil"
)

// Scanner owns the known-files universe and the module descriptor cache.
// All mutation happens inside a queued regeneration cycle; the mutex exists
// so a multi-threaded caller cannot corrupt the cache by accident.
type Scanner struct {
	root     string
	patterns []string

	mu         sync.Mutex
	discovered bool
	universe   map[string]struct{}
	entries    map[string]*ModuleDescriptor
}

// NewScanner creates a scanner for the given project root and glob patterns.
func NewScanner(root string, patterns []string) *Scanner {
	return &Scanner{
		root:     root,
		patterns: patterns,
		universe: make(map[string]struct{}),
		entries:  make(map[string]*ModuleDescriptor),
	}
}

// Discover expands the configured patterns into the authoritative universe
// of known container files. The universe persists until the next Discover
// or until Refresh is told about explicit adds and removes.
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	files, err := fsutil.FindByPatterns(s.root, s.patterns)
	if err != nil {
		return nil, fmt.Errorf("discovering container modules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.universe = make(map[string]struct{}, len(files))
	for _, f := range files {
		s.universe[f] = struct{}{}
	}
	s.discovered = true

	ctxlog.FromContext(ctx).Debug("Container file universe discovered.", "count", len(files))
	return files, nil
}

// Discovered reports whether the universe has been expanded at least once.
func (s *Scanner) Discovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discovered
}

// Qualifies reports whether an absolute path matches the configured
// patterns, i.e. whether a watcher event for it concerns the dev loop.
// It touches no mutable state and is safe from any goroutine.
func (s *Scanner) Qualifies(absPath string) bool {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range s.patterns {
		if fsutil.Match(p, rel) {
			return true
		}
	}
	return false
}

// Refresh re-parses the given changed paths (or the whole universe when both
// slices are nil), updates the cache, and purges descriptors for removed
// files. It reports true when anything changed structurally: an export
// added, removed or renamed, a routing key edited, a module added or gone.
// Incidental edits — comments, unexported code — never count.
func (s *Scanner) Refresh(ctx context.Context, changed, removed []string) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []string
	if changed == nil && removed == nil {
		targets = make([]string, 0, len(s.universe))
		for path := range s.universe {
			targets = append(targets, path)
		}
		sort.Strings(targets)
	} else {
		for _, path := range changed {
			if !s.Qualifies(path) {
				continue
			}
			s.universe[path] = struct{}{}
			targets = append(targets, path)
		}
	}

	next := make(map[string]*ModuleDescriptor, len(s.entries))
	for path, desc := range s.entries {
		next[path] = desc
	}

	for _, path := range removed {
		delete(s.universe, path)
		delete(next, path)
	}

	for _, path := range targets {
		exports, err := parseModuleFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Deleted between the event and the cycle: same as removed.
				delete(s.universe, path)
				delete(next, path)
				continue
			}
			// Broken file: skip this cycle only, the last-known descriptor
			// remains authoritative.
			logger.Warn("Container module failed to parse, keeping previous descriptor.", "path", path, "error", err)
			continue
		}
		if len(exports) == 0 {
			// Matched files without qualifying exports are never cached.
			delete(next, path)
			continue
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return false, fmt.Errorf("resolving relative path for %s: %w", path, err)
		}
		next[path] = &ModuleDescriptor{
			AbsolutePath: path,
			RelativePath: filepath.ToSlash(rel),
			Exports:      exports,
		}
	}

	s.assignNamespaces(next)

	dirty := !cmp.Equal(s.entries, next)
	s.entries = next
	logger.Debug("Cache refreshed.", "targets", len(targets), "removed", len(removed), "modules", len(next), "dirty", dirty)
	return dirty, nil
}

// Modules returns the cached descriptors sorted by namespace, the fixed
// generator input order.
func (s *Scanner) Modules() []ModuleDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ModuleDescriptor, 0, len(s.entries))
	for _, desc := range s.entries {
		out = append(out, *desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// assignNamespaces derives every descriptor's namespace. Paths whose
// sanitized base is unique keep it; colliding paths are ordered by relative
// path and every collider after the first appends its own FNV suffix, so
// the assignment stays deterministic for a given module set.
func (s *Scanner) assignNamespaces(entries map[string]*ModuleDescriptor) {
	byBase := make(map[string][]*ModuleDescriptor)
	for _, desc := range entries {
		base := namespaceBase(s.trimPatternPrefix(desc.RelativePath))
		byBase[base] = append(byBase[base], desc)
	}

	for base, group := range byBase {
		sort.Slice(group, func(i, j int) bool { return group[i].RelativePath < group[j].RelativePath })
		for i, desc := range group {
			// Descriptors are shared pointers with the previous cache
			// generation; copy-on-write so equality checks see the old value.
			ns := base
			if i > 0 {
				ns = base + namespaceSuffix(desc.RelativePath)
			}
			if desc.Namespace != ns {
				clone := *desc
				clone.Namespace = ns
				entries[desc.AbsolutePath] = &clone
			}
		}
	}
}

// trimPatternPrefix drops the static directory prefix of the first matching
// pattern, so `containers/mymodule.go` under `containers/**/*.go` namespaces
// as `mymodule`, not `containers__mymodule`.
func (s *Scanner) trimPatternPrefix(rel string) string {
	for _, p := range s.patterns {
		if !fsutil.Match(p, rel) {
			continue
		}
		prefix := staticPrefix(p)
		if prefix != "" && strings.HasPrefix(rel, prefix) {
			return rel[len(prefix):]
		}
		return rel
	}
	return rel
}

// staticPrefix returns the leading wildcard-free directory segments of a
// glob pattern, with a trailing slash.
func staticPrefix(pattern string) string {
	segs := strings.Split(pattern, "/")
	var static []string
	for _, seg := range segs[:max(len(segs)-1, 0)] {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return ""
	}
	return strings.Join(static, "/") + "/"
}
