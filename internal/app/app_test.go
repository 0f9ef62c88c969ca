package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/crucible/internal/hclconf"
)

const greeterSource = `package containers

import "context"

//crucible:entry
func Greet(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}
`

func newTestRoot(t *testing.T, hclSource string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"),
		[]byte("module example.com/demo\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "containers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "containers", "greeter.go"),
		[]byte(greeterSource), 0o644))
	if hclSource != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "crucible.hcl"),
			[]byte(hclSource), 0o644))
	}
	return root
}

func TestConfigLoggerFormatAndLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := &Config{LogFormat: "json", LogLevel: "warn"}
	logger := cfg.logger(&out)

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), `"msg":"loud"`)

	out.Reset()
	(&Config{}).logger(&out).Info("plain")
	assert.Contains(t, out.String(), "msg=plain")
}

func TestNewAppLoadsDefaults(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, "")

	a := NewApp(&bytes.Buffer{}, &Config{Root: root, Mode: ModeDev}, hclconf.NewLoader())

	model := a.Model()
	assert.Equal(t, []string{"containers/**/*.go"}, model.Patterns)
	assert.Equal(t, 8787, model.Port)
	assert.True(t, model.AutoRebuild)
}

func TestNewAppAppliesOverrides(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, "")

	a := NewApp(&bytes.Buffer{}, &Config{
		Root:             root,
		Mode:             ModeDev,
		PortOverride:     9999,
		NoRebuild:        true,
		DebounceOverride: 50 * time.Millisecond,
	}, hclconf.NewLoader())

	model := a.Model()
	assert.Equal(t, 9999, model.Port)
	assert.False(t, model.AutoRebuild)
	assert.Equal(t, 50*time.Millisecond, model.Debounce)
}

func TestNewAppPanicsOnMissingImageDescriptor(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, `image_descriptor = "deploy/image.yaml"`+"\n")

	require.Panics(t, func() {
		NewApp(&bytes.Buffer{}, &Config{Root: root, Mode: ModeDev}, hclconf.NewLoader())
	})
}

func TestRunWatchReturnsOnCancelledContext(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, "")
	a := NewApp(&bytes.Buffer{}, &Config{Root: root, Mode: ModeDev}, hclconf.NewLoader())

	// A pre-cancelled context can stop the worker before it ever dequeues
	// the seed cycle; Run must still come back.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunBuildProducesArtifacts(t *testing.T) {
	t.Parallel()
	// `true` stands in for the real bundle command; the cycle's generated
	// sources are what this test is after.
	root := newTestRoot(t, `bundle_command = ["true"]`+"\n")

	a := NewApp(&bytes.Buffer{}, &Config{Root: root, Mode: ModeBuild}, hclconf.NewLoader())
	require.NoError(t, a.Run(context.Background()))

	for _, rel := range []string{
		"runtime.go", "dispatch.go", "server/main.go",
		"proxies/greeter/greeter.go", "manifest.json", "image.yaml",
	} {
		assert.FileExists(t, filepath.Join(root, "gen", "crucible", rel))
	}
}

func TestRunBuildReportsBundleFailure(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, `bundle_command = ["false"]`+"\n")

	a := NewApp(&bytes.Buffer{}, &Config{Root: root, Mode: ModeBuild}, hclconf.NewLoader())
	err := a.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "release build failed")
}
