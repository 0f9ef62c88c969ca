package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Modes of operation.
const (
	// ModeDev watches the tree and regenerates on change.
	ModeDev = "dev"
	// ModeServe is ModeDev plus a supervised backend server that restarts
	// after changed cycles.
	ModeServe = "serve"
	// ModeBuild runs exactly one release cycle and exits.
	ModeBuild = "build"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// Root is the project directory holding go.mod and crucible.hcl.
	Root string
	// Mode is one of ModeDev, ModeServe or ModeBuild.
	Mode string

	LogFormat string
	LogLevel  string

	// StatusPort serves /healthz and /statusz when positive.
	StatusPort int

	// PortOverride replaces the configured backend port when positive.
	PortOverride int
	// NoRebuild disables automatic backend restarts in serve mode.
	NoRebuild bool
	// DebounceOverride replaces the configured debounce window when positive.
	DebounceOverride time.Duration
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		return nil, errors.New("Root is a required configuration field and cannot be empty")
	}
	switch cfg.Mode {
	case ModeDev, ModeServe, ModeBuild:
	default:
		return nil, fmt.Errorf("invalid mode %q: must be %q, %q or %q", cfg.Mode, ModeDev, ModeServe, ModeBuild)
	}
	return &cfg, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// logger builds the App's slog.Logger from the LogLevel and LogFormat
// fields. The global default logger is left untouched so concurrent App
// instances in tests keep isolated output.
func (c *Config) logger(out io.Writer) *slog.Logger {
	level, ok := logLevels[c.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
