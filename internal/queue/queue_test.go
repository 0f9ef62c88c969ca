package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/crucible/internal/bundler"
	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
	"github.com/vk/crucible/internal/generator"
)

const greeterSource = `package containers

import "context"

//crucible:entry
func Greet(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}
`

const greeterTwoExports = greeterSource + `
//crucible:entry
func Farewell(ctx context.Context, name string) (string, error) {
	return "bye " + name, nil
}
`

type recordingBundler struct {
	mu    sync.Mutex
	calls int
	block chan struct{} // when set, Build waits on it
	err   error
}

func (b *recordingBundler) Build(ctx context.Context, opts bundler.Options) error {
	b.mu.Lock()
	b.calls++
	block, err := b.block, b.err
	b.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (b *recordingBundler) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type harness struct {
	root    string
	queue   *Queue
	bundler *recordingBundler
	ctx     context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"),
		[]byte("module example.com/demo\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "containers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "containers", "greeter.go"),
		[]byte(greeterSource), 0o644))

	cfg := config.NewModel()
	project, err := generator.LoadProject(root)
	require.NoError(t, err)

	b := &recordingBundler{}
	q := New(root, cfg,
		discovery.NewScanner(root, cfg.Patterns),
		generator.New(cfg, project, emitter.NewTextEmitter()),
		b)

	ctx, cancel := context.WithCancel(
		ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-workerDone
	})

	return &harness{root: root, queue: q, bundler: b, ctx: ctx}
}

func (h *harness) wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not complete in time")
		return nil
	}
}

func (h *harness) generated(rel string) string {
	return filepath.Join(h.root, "gen", "crucible", rel)
}

func TestFirstCycleGeneratesEverything(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{})))

	for _, rel := range []string{
		"runtime.go", "dispatch.go", "server/main.go",
		"proxies/greeter/greeter.go", "manifest.json", "image.yaml",
	} {
		assert.FileExists(t, h.generated(rel))
	}
	assert.Equal(t, 0, h.bundler.count(), "dev cycles never bundle")
}

func TestCleanCycleLeavesOutputAlone(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{})))

	// Corrupt one output; a clean cycle must skip regeneration entirely.
	marker := []byte("// tampered\n")
	require.NoError(t, os.WriteFile(h.generated("runtime.go"), marker, 0o644))

	changed := []string{filepath.Join(h.root, "containers", "greeter.go")}
	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{Changed: changed})))

	content, err := os.ReadFile(h.generated("runtime.go"))
	require.NoError(t, err)
	assert.Equal(t, marker, content)
}

func TestStructuralChangeRegenerates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{})))

	source := filepath.Join(h.root, "containers", "greeter.go")
	require.NoError(t, os.WriteFile(source, []byte(greeterTwoExports), 0o644))

	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{Changed: []string{source}})))

	dispatch, err := os.ReadFile(h.generated("dispatch.go"))
	require.NoError(t, err)
	assert.Contains(t, string(dispatch), "greeter__Farewell")
}

func TestReleaseCycleBundles(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.wait(t, h.queue.Enqueue(Release, Delta{})))
	assert.Equal(t, 1, h.bundler.count())
}

func TestDrainWaitsForRunningCycle(t *testing.T) {
	h := newHarness(t)
	h.bundler.block = make(chan struct{})

	release := h.queue.Enqueue(Release, Delta{})

	drained := make(chan error, 1)
	go func() { drained <- h.queue.Drain(h.ctx) }()

	select {
	case <-drained:
		t.Fatal("Drain returned while a cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.bundler.block)
	require.NoError(t, h.wait(t, release))
	require.NoError(t, h.wait(t, drained))
}

func TestCycleFailureDoesNotStopWorker(t *testing.T) {
	h := newHarness(t)
	h.bundler.err = errors.New("bundle failed")

	err := h.wait(t, h.queue.Enqueue(Release, Delta{}))
	require.ErrorContains(t, err, "bundle failed")

	// The worker survives and the next cycle runs normally.
	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{Full: true})))
	assert.FileExists(t, h.generated("runtime.go"))
}

func TestUserImageDescriptorIsCopied(t *testing.T) {
	h := newHarness(t)
	descriptor := []byte("base: scratch\nport: 9000\n")
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "deploy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "deploy", "image.yaml"), descriptor, 0o644))
	h.queue.cfg.ImageDescriptorPath = "deploy/image.yaml"

	require.NoError(t, h.wait(t, h.queue.Enqueue(Dev, Delta{})))

	content, err := os.ReadFile(h.generated("image.yaml"))
	require.NoError(t, err)
	assert.Equal(t, descriptor, content)
}
