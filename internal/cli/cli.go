package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/crucible/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("crucible", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Crucible - a build orchestrator for out-of-process container modules.

Usage:
  crucible [options] [MODE]

Modes:
  dev    Watch the project and regenerate artifacts on change (default).
  serve  Like dev, plus run the generated server and restart it on change.
  build  Run one release cycle: regenerate, bundle, exit.

Options:
`)
		flagSet.PrintDefaults()
	}

	chdirFlag := flagSet.String("chdir", ".", "Project root directory to operate in.")
	cFlag := flagSet.String("C", "", "Project root directory to operate in (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	portFlag := flagSet.Int("port", 0, "Override the configured backend server port. 0 keeps the configured value.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	noRebuildFlag := flagSet.Bool("no-rebuild", false, "Disable automatic backend restarts in serve mode.")
	debounceFlag := flagSet.Duration("debounce", 0, "Override the change-coalescing window, e.g. 500ms. 0 keeps the configured value.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	mode := app.ModeDev
	if flagSet.NArg() > 0 {
		mode = strings.ToLower(flagSet.Arg(0))
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument: %s", flagSet.Arg(1))}
	}

	root := *chdirFlag
	if *cFlag != "" {
		root = *cFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Root:             root,
		Mode:             mode,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
		StatusPort:       *statusPortFlag,
		PortOverride:     *portFlag,
		NoRebuild:        *noRebuildFlag,
		DebounceOverride: *debounceFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "mode", config.Mode, "root", config.Root)
	return config, false, nil
}
