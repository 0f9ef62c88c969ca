// Package devloop is the watch-mode engine: it tails filesystem events,
// coalesces them through a debounce window, and feeds the regeneration
// queue. When a dev server is attached it also schedules backend restarts
// after changed cycles.
package devloop

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/queue"
)

// DevServer is the running backend the loop restarts after a structural
// change. Restart blocks until the replacement is up or failed.
type DevServer interface {
	Restart(ctx context.Context) error
}

// Loop watches a project tree and drives the regeneration queue.
type Loop struct {
	root    string
	cfg     *config.Model
	scanner *discovery.Scanner
	queue   *queue.Queue
	server  DevServer // nil outside serve mode

	watcher *fsnotify.Watcher
	regen   *Debouncer
	restart *Debouncer

	// Pending delta, accumulated between debounce firings.
	mu      sync.Mutex
	changed map[string]struct{}
	removed map[string]struct{}
	full    bool

	restartInFlight atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a loop watching every directory under root, excluding hidden
// directories and the output tree. The server may be nil; restarts are then
// never scheduled.
func New(root string, cfg *config.Model, scanner *discovery.Scanner, q *queue.Queue, server DevServer) (*Loop, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	l := &Loop{
		root:    root,
		cfg:     cfg,
		scanner: scanner,
		queue:   q,
		server:  server,
		watcher: watcher,
		regen:   NewDebouncer(cfg.Debounce),
		restart: NewDebouncer(cfg.Debounce),
		changed: make(map[string]struct{}),
		removed: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if err := l.watchTree(root); err != nil {
		watcher.Close()
		return nil, err
	}
	return l, nil
}

// Start begins the event loop in its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop halts the loop, cancels pending debounced work and closes the
// underlying watcher. It blocks until the event goroutine has exited.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
	l.regen.Cancel()
	l.restart.Cancel()
	l.watcher.Close()
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	log := ctxlog.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(ctx, event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("File watcher error.", "error", err)
		}
	}
}

func (l *Loop) handleEvent(ctx context.Context, event fsnotify.Event) {
	if l.ignored(event.Name) {
		return
	}

	// A new directory may already contain matching files that produced no
	// events of their own, so its appearance forces a full rescan.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = l.watcher.Add(event.Name)
			l.accumulate(ctx, "", "", true)
			return
		}
	}

	if !l.scanner.Qualifies(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		l.accumulate(ctx, "", event.Name, false)
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		l.accumulate(ctx, event.Name, "", false)
	}
}

// accumulate merges one observation into the pending delta and re-arms the
// regeneration debouncer. Force is monotonic within a window: once any
// observation demands a full rescan, the whole window does.
func (l *Loop) accumulate(ctx context.Context, changed, removed string, full bool) {
	l.mu.Lock()
	if changed != "" {
		l.changed[changed] = struct{}{}
		delete(l.removed, changed)
	}
	if removed != "" {
		l.removed[removed] = struct{}{}
		delete(l.changed, removed)
	}
	l.full = l.full || full
	l.mu.Unlock()

	l.regen.Trigger(func() { l.fire(ctx) })
}

// fire drains the pending delta into one queued cycle.
func (l *Loop) fire(ctx context.Context) {
	l.mu.Lock()
	delta := queue.Delta{Full: l.full}
	for path := range l.changed {
		delta.Changed = append(delta.Changed, path)
	}
	for path := range l.removed {
		delta.Removed = append(delta.Removed, path)
	}
	l.changed = make(map[string]struct{})
	l.removed = make(map[string]struct{})
	l.full = false
	l.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Change window closed, cycle queued.",
		"changed", len(delta.Changed), "removed", len(delta.Removed), "full", delta.Full)
	l.queue.Enqueue(queue.Dev, delta)

	if l.cfg.AutoRebuild && l.server != nil {
		l.restart.Trigger(func() { l.restartServer(ctx) })
	}
}

// restartServer drains the queue and bounces the dev server. The in-flight
// flag drops overlapping requests instead of queueing them: the running
// restart already picks up everything regenerated before it drains.
func (l *Loop) restartServer(ctx context.Context) {
	if !l.restartInFlight.CompareAndSwap(false, true) {
		return
	}
	defer l.restartInFlight.Store(false)

	log := ctxlog.FromContext(ctx)
	if err := l.queue.Drain(ctx); err != nil {
		log.Warn("Restart aborted, queue drain failed.", "error", err)
		return
	}
	if err := l.server.Restart(ctx); err != nil {
		log.Error("Dev server restart failed.", "error", err)
		return
	}
	log.Info("Dev server restarted.")
}

// ignored reports whether a path lies outside the loop's interest: hidden
// trees, dependency caches, or the generated output itself. Events for
// generated files would otherwise feed the loop its own writes.
func (l *Loop) ignored(path string) bool {
	rel, err := filepath.Rel(l.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == l.cfg.OutputDir || strings.HasPrefix(rel, l.cfg.OutputDir+"/") {
		return true
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == "node_modules" || (strings.HasPrefix(segment, ".") && segment != ".") {
			return true
		}
	}
	return false
}

// watchTree registers root and every eligible subdirectory.
func (l *Loop) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && l.ignored(path) {
			return filepath.SkipDir
		}
		return l.watcher.Add(path)
	})
}
