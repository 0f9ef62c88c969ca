package config

import "time"

// Default values applied by ApplyDefaults when a setting is absent.
const (
	// DefaultOutputDir must be an importable path: generated proxies are
	// regular packages of the host module, so no hidden directories.
	DefaultOutputDir       = "gen/crucible"
	DefaultDispatchBinding = "CONTAINER_DISPATCH"
	DefaultDispatchClass   = "ContainerDispatch"
	DefaultPort            = 8787
	DefaultDebounce        = 300 * time.Millisecond
)

// DefaultPatterns is the glob universe scanned for container modules when
// the project declares none.
var DefaultPatterns = []string{"containers/**/*.go"}

// Model is the unified, format-agnostic representation of a project's
// orchestrator configuration. Every field is optional in the source file;
// ApplyDefaults fills the gaps.
type Model struct {
	// Patterns are root-relative globs selecting container module files.
	Patterns []string
	// OutputDir receives all generated artifacts, relative to the root.
	OutputDir string
	// DispatchBinding is the name the dispatch surface is bound under in
	// the generated server entry.
	DispatchBinding string
	// DispatchClass is the type name of the generated dispatch surface.
	DispatchClass string
	// Port is the network port the packaged server listens on.
	Port int
	// Externals lists dependency names left unbundled and recorded in the
	// packaged manifest.
	Externals []string
	// Image configures the generated image-build descriptor inline.
	Image *Image
	// ImageDescriptorPath points at a user-maintained descriptor instead
	// of an Image block. Declaring a path that does not exist is a fatal
	// startup misconfiguration.
	ImageDescriptorPath string
	// EnvPassthrough maps environment variable names forwarded into the
	// packaged server to fixed values; an empty value means "inherit from
	// the build environment".
	EnvPassthrough map[string]string
	// AutoRebuild toggles the automatic backend rebuild on file changes.
	AutoRebuild bool
	// Debounce is the quiet period coalescing file events into one
	// regeneration cycle.
	Debounce time.Duration
	// BundleCommand overrides the command used to bundle the generated
	// server entry into one artifact.
	BundleCommand []string
}

// Image is the inline form of the image-build descriptor.
type Image struct {
	Base      string
	BuildArgs map[string]string
	Env       map[string]string
}

// NewModel returns a Model with every default applied.
func NewModel() *Model {
	m := &Model{AutoRebuild: true}
	m.ApplyDefaults()
	return m
}

// ApplyDefaults fills unset fields with their documented defaults. It never
// overrides an explicit value.
func (m *Model) ApplyDefaults() {
	if len(m.Patterns) == 0 {
		m.Patterns = append([]string(nil), DefaultPatterns...)
	}
	if m.OutputDir == "" {
		m.OutputDir = DefaultOutputDir
	}
	if m.DispatchBinding == "" {
		m.DispatchBinding = DefaultDispatchBinding
	}
	if m.DispatchClass == "" {
		m.DispatchClass = DefaultDispatchClass
	}
	if m.Port == 0 {
		m.Port = DefaultPort
	}
	if m.Debounce == 0 {
		m.Debounce = DefaultDebounce
	}
	if m.EnvPassthrough == nil {
		m.EnvPassthrough = make(map[string]string)
	}
}
