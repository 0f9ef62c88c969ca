package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vk/crucible/internal/bundler"
	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
	"github.com/vk/crucible/internal/generator"
	"github.com/vk/crucible/internal/queue"
)

// App encapsulates the orchestrator's dependencies, configuration, and
// lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	appConfig *Config

	model   *config.Model
	project *generator.Project
	scanner *discovery.Scanner
	queue   *queue.Queue
}

// NewApp is the constructor for the orchestrator. It returns a fully
// initialized App instance with its own isolated logger. Fatal startup
// misconfiguration panics; the entrypoint recovers and reports it.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := appConfig.logger(outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.Root)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	applyOverrides(model, appConfig)
	logger.Debug("Configuration loaded into unified model.")

	if model.ImageDescriptorPath != "" {
		descriptor := filepath.Join(appConfig.Root, model.ImageDescriptorPath)
		if _, err := os.Stat(descriptor); err != nil {
			panic(fmt.Errorf("configured image descriptor %s is not readable: %w", model.ImageDescriptorPath, err))
		}
	}

	project, err := generator.LoadProject(appConfig.Root)
	if err != nil {
		panic(fmt.Errorf("failed to load project module: %w", err))
	}
	logger.Debug("Project module loaded.", "module", project.ModulePath)

	scanner := discovery.NewScanner(appConfig.Root, model.Patterns)
	gen := generator.New(model, project, emitter.NewTextEmitter())
	q := queue.New(appConfig.Root, model, scanner, gen, bundler.NewExec(model.BundleCommand))

	return &App{
		outW:      outW,
		logger:    logger,
		appConfig: appConfig,
		model:     model,
		project:   project,
		scanner:   scanner,
		queue:     q,
	}
}

// applyOverrides folds command-line overrides into the loaded model.
func applyOverrides(model *config.Model, appConfig *Config) {
	if appConfig.PortOverride > 0 {
		model.Port = appConfig.PortOverride
	}
	if appConfig.DebounceOverride > 0 {
		model.Debounce = appConfig.DebounceOverride
	}
	if appConfig.NoRebuild {
		model.AutoRebuild = false
	}
}

// Model returns the loaded configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
