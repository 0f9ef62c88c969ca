// Package bundler turns the generated server entry into a runnable
// artifact. The default implementation shells out to the Go toolchain;
// projects with bespoke packaging substitute their own command through
// configuration.
package bundler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vk/crucible/internal/ctxlog"
)

// Options describes one bundle request.
type Options struct {
	// Root is the project root the command runs in.
	Root string
	// OutputDir is the root-relative directory holding the generated
	// server entry.
	OutputDir string
}

// Bundler builds the packaged server binary.
type Bundler interface {
	Build(ctx context.Context, opts Options) error
}

// Exec is the command-line Bundler. A nil or empty Command selects the
// default Go build of the generated server entry.
type Exec struct {
	Command []string
}

// NewExec creates a command-line bundler. The command is used verbatim;
// pass nil for the default.
func NewExec(command []string) *Exec {
	return &Exec{Command: command}
}

// Build implements Bundler.
func (e *Exec) Build(ctx context.Context, opts Options) error {
	command := e.Command
	if len(command) == 0 {
		out := filepath.Join(opts.OutputDir, "server", "bin", "server")
		command = []string{"go", "build", "-o", out, "./" + filepath.ToSlash(filepath.Join(opts.OutputDir, "server"))}
	}

	ctxlog.FromContext(ctx).Debug("Bundling server entry.", "command", command)

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = opts.Root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("bundling server entry: %w", err)
	}
	return nil
}
