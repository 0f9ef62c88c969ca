package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/crucible/internal/emitter"
)

// manifest is the packaged-server dependency record. Dependencies holds the
// intersection of the project's direct requirements and the configured
// externals: modules the bundle expects to find at runtime instead of
// carrying itself.
type manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
}

// Manifest renders manifest.json for the packaged server.
func (g *Generator) Manifest() ([]byte, error) {
	external := make(map[string]struct{}, len(g.cfg.Externals))
	for _, name := range g.cfg.Externals {
		external[name] = struct{}{}
	}

	deps := []string{}
	for _, req := range g.project.Requires {
		if _, ok := external[req]; ok {
			deps = append(deps, req)
		}
	}
	sort.Strings(deps)

	out, err := json.MarshalIndent(manifest{
		Name:         g.project.Name,
		Version:      "0.0.0",
		Dependencies: deps,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(out, '\n'), nil
}

// imageDescriptor is the YAML shape of image.yaml.
type imageDescriptor struct {
	Base      string            `yaml:"base"`
	Port      int               `yaml:"port"`
	BuildArgs map[string]string `yaml:"build_args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// defaultImageBase is the build image used when the project declares no
// image block of its own.
const defaultImageBase = "golang:1.24-alpine"

// ImageDescriptor renders image.yaml from the inline image block. It
// returns nil when the project points at a user-maintained descriptor file,
// in which case the cycle copies that file instead of generating one.
func (g *Generator) ImageDescriptor() ([]byte, error) {
	if g.cfg.ImageDescriptorPath != "" {
		return nil, nil
	}

	desc := imageDescriptor{
		Base: defaultImageBase,
		Port: g.cfg.Port,
	}
	if img := g.cfg.Image; img != nil {
		if img.Base != "" {
			desc.Base = img.Base
		}
		desc.BuildArgs = img.BuildArgs
		desc.Env = img.Env
	}

	out, err := yaml.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("encoding image descriptor: %w", err)
	}
	return out, nil
}

// ServerEntry generates the main package hosting the dispatch surface. The
// entry binds the surface under its configured name, forwards the declared
// environment variables, and serves the batch endpoint on the configured
// port.
func (g *Generator) ServerEntry() *emitter.File {
	return &emitter.File{
		Header:  header,
		Package: "main",
		Imports: []emitter.Import{
			{Path: "fmt"},
			{Path: "log/slog"},
			{Path: "os"},
			{Alias: "gen", Path: g.genImportPath()},
			{Path: "github.com/vk/crucible/pkg/dispatch"},
		},
		Decls: []emitter.Decl{
			emitter.Var{
				Doc:   "forwardedEnv lists environment variables carried from the build\nenvironment into the server process; a non-empty value pins the\nvariable instead of inheriting it.",
				Name:  "forwardedEnv",
				Value: envLiteral(g.cfg.EnvPassthrough),
			},
			emitter.Func{
				Name: "main",
				Body: []string{
					"for name, value := range forwardedEnv {",
					"\tif value != \"\" {",
					"\t\tos.Setenv(name, value)",
					"\t}",
					"}",
					"",
					fmt.Sprintf("surface := &gen.%s{}", g.cfg.DispatchClass),
					"addr := fmt.Sprintf(\":%d\", gen.Port)",
					"slog.Info(\"Container server listening.\", \"addr\", addr, \"binding\", gen.DispatchBinding)",
					"if err := dispatch.Serve(addr, surface.Methods()); err != nil {",
					"\tslog.Error(\"Container server failed.\", \"error\", err)",
					"\tos.Exit(1)",
					"}",
				},
			},
		},
	}
}

// envLiteral renders a sorted map literal so the entry is byte-stable
// across runs.
func envLiteral(env map[string]string) string {
	if len(env) == 0 {
		return "map[string]string{}"
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("map[string]string{\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "\t%q: %q,\n", name, env[name])
	}
	sb.WriteString("}")
	return sb.String()
}
