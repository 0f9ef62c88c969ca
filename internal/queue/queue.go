// Package queue serializes regeneration cycles. Every trigger — startup,
// watcher batch, release build — becomes a job consumed by one worker
// goroutine, so cycles never interleave and the scanner cache needs no
// coordination beyond FIFO order.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/crucible/internal/bundler"
	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/fswrite"
	"github.com/vk/crucible/internal/generator"
)

// Kind selects what a cycle produces beyond the generated sources.
type Kind int

const (
	// Dev regenerates artifacts only.
	Dev Kind = iota
	// Release regenerates and then bundles the server entry.
	Release
)

// Delta is the file-change payload of one job. A zero Delta re-parses
// nothing unless it is the first cycle; Full forces a fresh discovery pass
// over the whole pattern universe.
type Delta struct {
	Changed []string
	Removed []string
	Full    bool
}

type job struct {
	kind    Kind
	delta   Delta
	barrier bool
	done    chan error
}

// Queue is the single-consumer regeneration pipeline.
type Queue struct {
	root    string
	cfg     *config.Model
	scanner *discovery.Scanner
	gen     *generator.Generator
	bundler bundler.Bundler

	jobs chan job

	// completedOnce is touched by the worker goroutine only. The first
	// cycle always generates, whatever the scanner reports: output may be
	// missing or stale from a previous run.
	completedOnce bool
}

// New creates a queue. Run must be started before Enqueue unblocks callers
// past the channel buffer.
func New(root string, cfg *config.Model, scanner *discovery.Scanner, gen *generator.Generator, b bundler.Bundler) *Queue {
	return &Queue{
		root:    root,
		cfg:     cfg,
		scanner: scanner,
		gen:     gen,
		bundler: b,
		jobs:    make(chan job, 64),
	}
}

// Enqueue submits one cycle and returns a channel that receives the
// cycle's outcome. The channel is buffered; callers may drop it.
func (q *Queue) Enqueue(kind Kind, delta Delta) <-chan error {
	done := make(chan error, 1)
	q.jobs <- job{kind: kind, delta: delta, done: done}
	return done
}

// Drain blocks until every job enqueued before the call has finished.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case q.jobs <- job{barrier: true, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes jobs until the context is cancelled. Cycle failures are
// reported to the enqueuer and logged; they never stop the worker, because
// a broken source file mid-edit is a normal dev-loop state.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-q.jobs:
			if j.barrier {
				j.done <- nil
				continue
			}
			err := q.runCycle(ctx, j)
			if err != nil {
				ctxlog.FromContext(ctx).Error("Regeneration cycle failed.", "error", err)
			}
			j.done <- err
		}
	}
}

func (q *Queue) runCycle(ctx context.Context, j job) error {
	log := ctxlog.FromContext(ctx)
	start := time.Now()

	changed, removed := j.delta.Changed, j.delta.Removed
	if !q.scanner.Discovered() || j.delta.Full {
		if _, err := q.scanner.Discover(ctx); err != nil {
			return err
		}
		// The fresh universe supersedes any per-file delta.
		changed, removed = nil, nil
	}

	dirty, err := q.scanner.Refresh(ctx, changed, removed)
	if err != nil {
		return err
	}

	if !dirty && q.completedOnce && j.kind == Dev {
		log.Debug("No structural change, cycle skipped.", "duration", time.Since(start))
		return nil
	}

	modules := q.scanner.Modules()
	artifacts, err := q.gen.All(modules)
	if err != nil {
		return err
	}

	written := 0
	for _, artifact := range artifacts {
		wrote, err := fswrite.WriteIfChanged(filepath.Join(q.root, artifact.RelPath), artifact.Content)
		if err != nil {
			return err
		}
		if wrote {
			written++
		}
	}

	if err := q.syncImageDescriptor(); err != nil {
		return err
	}

	if j.kind == Release {
		if err := q.bundler.Build(ctx, bundler.Options{Root: q.root, OutputDir: q.cfg.OutputDir}); err != nil {
			return err
		}
	}

	q.completedOnce = true
	log.Info("Regeneration cycle complete.",
		"modules", len(modules),
		"written", written,
		"duration", time.Since(start))
	return nil
}

// syncImageDescriptor copies a user-maintained image descriptor into the
// output tree. The generator emits nothing for it, so the copy here is the
// only source of the packaged image.yaml.
func (q *Queue) syncImageDescriptor() error {
	if q.cfg.ImageDescriptorPath == "" {
		return nil
	}
	src := filepath.Join(q.root, q.cfg.ImageDescriptorPath)
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading image descriptor %s: %w", src, err)
	}
	_, err = fswrite.WriteIfChanged(filepath.Join(q.root, q.cfg.OutputDir, "image.yaml"), content)
	return err
}
