package hclconf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/crucible/internal/config"
)

func loadFromString(t *testing.T, content string) (*config.Model, error) {
	t.Helper()
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, FileName), []byte(content), 0644))
	return NewLoader().Load(context.Background(), tmpDir)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	model, err := NewLoader().Load(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPatterns, model.Patterns)
	assert.Equal(t, config.DefaultOutputDir, model.OutputDir)
	assert.Equal(t, config.DefaultDispatchClass, model.DispatchClass)
	assert.Equal(t, config.DefaultPort, model.Port)
	assert.Equal(t, config.DefaultDebounce, model.Debounce)
	assert.True(t, model.AutoRebuild)
}

func TestLoadFullFile(t *testing.T) {
	model, err := loadFromString(t, `
patterns         = ["services/**/*.go"]
output_dir       = "gen"
dispatch_binding = "DISPATCH"
dispatch_class   = "Dispatch"
port             = 9000
externals        = ["modernc.org/sqlite"]
auto_rebuild     = false
debounce_ms      = 150
bundle_command   = ["make", "bundle"]

image {
  base       = "docker.io/library/golang:1.24"
  build_args = { TARGET = "server" }
  env        = { MODE = "production" }
}
`)
	require.NoError(t, err)

	assert.Equal(t, []string{"services/**/*.go"}, model.Patterns)
	assert.Equal(t, "gen", model.OutputDir)
	assert.Equal(t, "DISPATCH", model.DispatchBinding)
	assert.Equal(t, "Dispatch", model.DispatchClass)
	assert.Equal(t, 9000, model.Port)
	assert.Equal(t, []string{"modernc.org/sqlite"}, model.Externals)
	assert.False(t, model.AutoRebuild)
	assert.Equal(t, 150*time.Millisecond, model.Debounce)
	assert.Equal(t, []string{"make", "bundle"}, model.BundleCommand)
	require.NotNil(t, model.Image)
	assert.Equal(t, "docker.io/library/golang:1.24", model.Image.Base)
	assert.Equal(t, map[string]string{"TARGET": "server"}, model.Image.BuildArgs)
}

func TestLoadEnvPassthroughListForm(t *testing.T) {
	model, err := loadFromString(t, `env_passthrough = ["API_KEY", "REGION"]`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "", "REGION": ""}, model.EnvPassthrough)
}

func TestLoadEnvPassthroughMapForm(t *testing.T) {
	model, err := loadFromString(t, `env_passthrough = { MODE = "dev" }`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MODE": "dev"}, model.EnvPassthrough)
}

func TestLoadEnvPassthroughRejectsOtherShapes(t *testing.T) {
	_, err := loadFromString(t, `env_passthrough = 42`)
	require.Error(t, err)
}

func TestLoadParseErrorIsReported(t *testing.T) {
	_, err := loadFromString(t, `patterns = [`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}
