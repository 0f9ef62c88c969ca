package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/crucible/internal/config"
)

// stopGrace is how long a backend gets to exit after an interrupt before
// it is killed.
const stopGrace = 5 * time.Second

// backendServer supervises the generated container server as a child
// process. It implements devloop.DevServer: the dev loop bounces it after
// every changed cycle.
type backendServer struct {
	root    string
	command []string
	outW    io.Writer
	logger  *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// newBackendServer builds a supervisor running the generated server entry
// through `go run`. Projects that bundle differently get their binary
// restarted by whatever their bundle command produced; the supervisor only
// needs a command that blocks while the backend serves.
func newBackendServer(root string, model *config.Model, outW io.Writer, logger *slog.Logger) *backendServer {
	return &backendServer{
		root:    root,
		command: []string{"go", "run", "./" + filepath.ToSlash(filepath.Join(model.OutputDir, "server"))},
		outW:    outW,
		logger:  logger,
	}
}

// Restart stops the running backend, if any, and starts a fresh one.
func (s *backendServer) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(ctx)

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.root
	cmd.Stdout = s.outW
	cmd.Stderr = s.outW
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting backend server: %w", err)
	}
	s.cmd = cmd
	s.logger.Debug("Backend server started.", "pid", cmd.Process.Pid)
	return nil
}

// Stop terminates the backend, if running.
func (s *backendServer) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *backendServer) stopLocked(ctx context.Context) {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	_ = s.cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	cmd := s.cmd
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Warn("Backend server ignored interrupt, killing.", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
	}
	s.cmd = nil
}
