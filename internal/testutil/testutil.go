// Package testutil provides shared helpers for integration tests: a
// thread-safe log buffer and a temp-project harness.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/crucible/internal/app"
	"github.com/vk/crucible/internal/hclconf"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Root      string
	LogOutput string
	Err       error
	App       *app.App
}

// defaultGoMod is the host module every harness project declares.
const defaultGoMod = "module example.com/demo\n\ngo 1.24\n"

// RunBuild writes the given project files into a fresh temp root, runs one
// release cycle with the bundle step stubbed out, and returns the result.
// Startup panics are recovered into Err so misconfiguration tests stay
// ordinary assertions.
func RunBuild(t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()
	return RunBuildWithContext(context.Background(), t, files)
}

// RunBuildWithContext is RunBuild with a caller-provided context.
func RunBuildWithContext(ctx context.Context, t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()

	root := t.TempDir()
	if _, ok := files["go.mod"]; !ok {
		require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(defaultGoMod), 0o644))
	}
	if _, ok := files[hclconf.FileName]; !ok {
		require.NoError(t, os.WriteFile(filepath.Join(root, hclconf.FileName),
			[]byte("bundle_command = [\"true\"]\n"), 0o644))
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	logBuffer := &SafeBuffer{}
	appConfig := &app.Config{
		Root:      root,
		Mode:      app.ModeBuild,
		LogLevel:  "debug",
		LogFormat: "text",
	}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hclconf.NewLoader())
	}()

	if panicErr != nil {
		return &HarnessResult{
			Root:      root,
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	runErr := testApp.Run(ctx)
	return &HarnessResult{
		Root:      root,
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}

// Generated reads one generated artifact from the harness project, or an
// empty string when it does not exist.
func (r *HarnessResult) Generated(t *testing.T, rel string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(r.Root, "gen", "crucible", rel))
	if err != nil {
		return ""
	}
	return string(content)
}
