package devloop

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vk/crucible/internal/bundler"
	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
	"github.com/vk/crucible/internal/generator"
	"github.com/vk/crucible/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const greeterSource = `package containers

import "context"

//crucible:entry
func Greet(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}
`

const greeterWithFarewell = greeterSource + `
//crucible:entry
func Farewell(ctx context.Context, name string) (string, error) {
	return "bye " + name, nil
}
`

type nopBundler struct{}

func (nopBundler) Build(context.Context, bundler.Options) error { return nil }

type countingServer struct {
	restarts atomic.Int32
}

func (s *countingServer) Restart(context.Context) error {
	s.restarts.Add(1)
	return nil
}

type harness struct {
	root   string
	cfg    *config.Model
	queue  *queue.Queue
	loop   *Loop
	server *countingServer
}

func newHarness(t *testing.T, mutate func(*config.Model), server *countingServer) *harness {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"),
		[]byte("module example.com/demo\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "containers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "containers", "greeter.go"),
		[]byte(greeterSource), 0o644))

	cfg := config.NewModel()
	cfg.Debounce = 30 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	project, err := generator.LoadProject(root)
	require.NoError(t, err)

	scanner := discovery.NewScanner(root, cfg.Patterns)
	q := queue.New(root, cfg, scanner, generator.New(cfg, project, emitter.NewTextEmitter()), nopBundler{})

	ctx, cancel := context.WithCancel(
		ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = q.Run(ctx)
	}()

	var devServer DevServer
	if server != nil {
		devServer = server
	}
	loop, err := New(root, cfg, scanner, q, devServer)
	require.NoError(t, err)
	loop.Start(ctx)

	t.Cleanup(func() {
		loop.Stop()
		cancel()
		<-workerDone
		// Pending debounced callbacks may still be in flight briefly.
		time.Sleep(50 * time.Millisecond)
	})

	// Initial cycle, the way the app seeds watch mode.
	select {
	case err := <-q.Enqueue(queue.Dev, queue.Delta{}):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("initial cycle did not complete")
	}

	return &harness{root: root, cfg: cfg, queue: q, loop: loop, server: server}
}

func (h *harness) generatedDispatch(t *testing.T) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(h.root, "gen", "crucible", "dispatch.go"))
	if err != nil {
		return ""
	}
	return string(content)
}

func TestEditRegeneratesAfterQuietPeriod(t *testing.T) {
	h := newHarness(t, nil, nil)
	source := filepath.Join(h.root, "containers", "greeter.go")

	// A burst of saves, as editors produce.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(source, []byte(greeterWithFarewell), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return strings.Contains(h.generatedDispatch(t), "greeter__Farewell")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRemovedModuleDisappearsFromDispatch(t *testing.T) {
	h := newHarness(t, nil, nil)
	require.Contains(t, h.generatedDispatch(t), "greeter__Greet")

	require.NoError(t, os.Remove(filepath.Join(h.root, "containers", "greeter.go")))

	assert.Eventually(t, func() bool {
		return !strings.Contains(h.generatedDispatch(t), "greeter__Greet")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTwoFilesInOneWindowLandInOneCycle(t *testing.T) {
	h := newHarness(t, nil, nil)

	second := `package containers

import "context"

//crucible:entry
func Ping(ctx context.Context) error {
	return nil
}
`
	// Both writes fall inside one debounce window; the coalesced cycle
	// must carry the union of the two changed paths.
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "containers", "greeter.go"),
		[]byte(greeterWithFarewell), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "containers", "pinger.go"),
		[]byte(second), 0o644))

	assert.Eventually(t, func() bool {
		dispatch := h.generatedDispatch(t)
		return strings.Contains(dispatch, "greeter__Farewell") &&
			strings.Contains(dispatch, "pinger__Ping")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUnrelatedFileTriggersNothing(t *testing.T) {
	h := newHarness(t, nil, nil)
	before := h.generatedDispatch(t)

	require.NoError(t, os.WriteFile(filepath.Join(h.root, "README.md"), []byte("docs"), 0o644))

	time.Sleep(4 * h.cfg.Debounce)
	assert.Equal(t, before, h.generatedDispatch(t))
}

func TestServerRestartsAfterChange(t *testing.T) {
	server := &countingServer{}
	h := newHarness(t, nil, server)

	source := filepath.Join(h.root, "containers", "greeter.go")
	require.NoError(t, os.WriteFile(source, []byte(greeterWithFarewell), 0o644))

	assert.Eventually(t, func() bool { return server.restarts.Load() >= 1 },
		5*time.Second, 20*time.Millisecond)
}

func TestNoRestartWhenAutoRebuildOff(t *testing.T) {
	server := &countingServer{}
	h := newHarness(t, func(cfg *config.Model) { cfg.AutoRebuild = false }, server)

	source := filepath.Join(h.root, "containers", "greeter.go")
	require.NoError(t, os.WriteFile(source, []byte(greeterWithFarewell), 0o644))

	assert.Eventually(t, func() bool {
		return strings.Contains(h.generatedDispatch(t), "greeter__Farewell")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(0), server.restarts.Load())
}
