package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/crucible/internal/ctxlog"
)

// Launcher provisions a backend instance for a routing key the first time
// that key is seen. It returns the backend identifier (typically host:port)
// that all subsequent calls for the key will target.
type Launcher interface {
	Launch(ctx context.Context, key string) (string, error)
}

// LaunchFunc adapts a plain function to the Launcher interface.
type LaunchFunc func(ctx context.Context, key string) (string, error)

// Launch implements Launcher.
func (f LaunchFunc) Launch(ctx context.Context, key string) (string, error) { return f(ctx, key) }

// Table is the default Resolver: a thread-safe in-memory map from routing
// key to backend identifier, populated lazily through a Launcher.
//
// An RWMutex fits the access pattern here: after warm-up nearly every call
// is a read hit on an existing key, and launches are rare and slow enough
// that serializing them under the write lock also prevents double-launching
// a backend for one key.
type Table struct {
	mu       sync.RWMutex
	backends map[string]string
	launcher Launcher
}

// NewTable creates an empty routing table backed by the given launcher.
func NewTable(launcher Launcher) *Table {
	if launcher == nil {
		panic("routing: launcher must not be nil")
	}
	return &Table{
		backends: make(map[string]string),
		launcher: launcher,
	}
}

// ResolveContainerKey implements Resolver.
func (t *Table) ResolveContainerKey(ctx context.Context, namespace, export string, call CallContext, fallback KeyFunc) (string, error) {
	key := DefaultKey
	if fallback != nil {
		k, err := fallback(ctx, call)
		if err != nil {
			return "", fmt.Errorf("evaluating routing key for %s.%s: %w", namespace, export, err)
		}
		key = k
	}
	if key == "" {
		return "", fmt.Errorf("routing key for %s.%s resolved to an empty string", namespace, export)
	}

	t.mu.RLock()
	backend, ok := t.backends[key]
	t.mu.RUnlock()
	if ok {
		return backend, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check: another caller may have launched while we waited.
	if backend, ok := t.backends[key]; ok {
		return backend, nil
	}

	backend, err := t.launcher.Launch(ctx, key)
	if err != nil {
		return "", fmt.Errorf("launching backend for key %q: %w", key, err)
	}
	t.backends[key] = backend
	ctxlog.FromContext(ctx).Debug("Backend launched for routing key.", "key", key, "backend", backend)
	return backend, nil
}

// Backends returns a snapshot of the current key to backend mapping.
func (t *Table) Backends() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.backends))
	for k, v := range t.backends {
		out[k] = v
	}
	return out
}
