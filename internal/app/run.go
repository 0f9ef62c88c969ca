package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/devloop"
	"github.com/vk/crucible/internal/queue"
)

// Run executes the orchestrator in the configured mode. In watch modes it
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", a.appConfig.Mode)

	if a.appConfig.Mode == ModeBuild {
		return a.runBuild(ctx)
	}
	return a.runWatch(ctx)
}

// runBuild performs exactly one release cycle.
func (a *App) runBuild(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	g, _ := errgroup.WithContext(workerCtx)
	g.Go(func() error { return a.queue.Run(workerCtx) })

	var cycleErr error
	select {
	case cycleErr = <-a.queue.Enqueue(queue.Release, queue.Delta{}):
	case <-ctx.Done():
		cycleErr = ctx.Err()
	}

	stopWorker()
	if err := g.Wait(); err != nil {
		return err
	}
	if cycleErr != nil {
		return fmt.Errorf("release build failed: %w", cycleErr)
	}
	a.logger.Info("Release build complete.", "output", a.model.OutputDir)
	return nil
}

// runWatch runs the dev loop, and in serve mode also the supervised
// backend, until the context ends.
func (a *App) runWatch(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.queue.Run(groupCtx) })
	g.Go(func() error { return a.statusServer(groupCtx) })

	var backend *backendServer
	var devServer devloop.DevServer
	if a.appConfig.Mode == ModeServe {
		backend = newBackendServer(a.appConfig.Root, a.model, a.outW, a.logger)
		devServer = backend
	}

	loop, err := devloop.New(a.appConfig.Root, a.model, a.scanner, a.queue, devServer)
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	loop.Start(groupCtx)
	defer loop.Stop()

	// First cycle runs unconditionally; a failure here is a normal dev
	// state (broken source mid-edit), so the loop keeps watching.
	select {
	case err := <-a.queue.Enqueue(queue.Dev, queue.Delta{}):
		if err != nil {
			a.logger.Warn("Initial generation failed, watching for fixes.", "error", err)
		} else if backend != nil {
			if err := backend.Restart(groupCtx); err != nil {
				a.logger.Error("Backend server failed to start.", "error", err)
			}
		}
	case <-groupCtx.Done():
	}

	a.logger.Info("Watching for container changes.", "root", a.appConfig.Root)
	<-groupCtx.Done()

	if backend != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		backend.Stop(stopCtx)
		cancel()
	}
	return g.Wait()
}
