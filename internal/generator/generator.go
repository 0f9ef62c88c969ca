package generator

import (
	"fmt"
	"path"

	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
)

// header is the banner carried by every generated source file.
const header = "Code generated by crucible. DO NOT EDIT."

// genPackage is the package name of the shared runtime/dispatch output.
const genPackage = "cruciblegen"

// Artifact is one generated output: a root-relative path and its content.
type Artifact struct {
	RelPath string
	Content []byte
}

// Generator produces every derived artifact of a project. It holds only
// immutable inputs, so a single instance serves all cycles.
type Generator struct {
	cfg     *config.Model
	project *Project
	emitter emitter.Emitter
}

// New creates a generator for the given project configuration.
func New(cfg *config.Model, project *Project, em emitter.Emitter) *Generator {
	return &Generator{cfg: cfg, project: project, emitter: em}
}

// All renders the complete artifact set for the given module set, in a
// fixed order: runtime marker, dispatch surface, server entry, one proxy
// per module, manifest, image descriptor.
func (g *Generator) All(modules []discovery.ModuleDescriptor) ([]Artifact, error) {
	out := make([]Artifact, 0, len(modules)+5)

	files := []struct {
		rel  string
		file *emitter.File
	}{
		{path.Join(g.cfg.OutputDir, "runtime.go"), g.RuntimeMarker()},
		{path.Join(g.cfg.OutputDir, "dispatch.go"), g.DispatchSurface(modules)},
		{path.Join(g.cfg.OutputDir, "server", "main.go"), g.ServerEntry()},
	}
	for _, module := range modules {
		files = append(files, struct {
			rel  string
			file *emitter.File
		}{path.Join(g.cfg.OutputDir, "proxies", module.Namespace, module.Namespace+".go"), g.Proxy(module)})
	}

	for _, f := range files {
		content, err := g.emitter.Emit(f.file)
		if err != nil {
			return nil, fmt.Errorf("emitting %s: %w", f.rel, err)
		}
		out = append(out, Artifact{RelPath: f.rel, Content: content})
	}

	manifest, err := g.Manifest()
	if err != nil {
		return nil, err
	}
	out = append(out, Artifact{RelPath: path.Join(g.cfg.OutputDir, "manifest.json"), Content: manifest})

	image, err := g.ImageDescriptor()
	if err != nil {
		return nil, err
	}
	if image != nil {
		out = append(out, Artifact{RelPath: path.Join(g.cfg.OutputDir, "image.yaml"), Content: image})
	}

	return out, nil
}

// genImportPath is the import path of the generated runtime package.
func (g *Generator) genImportPath() string {
	return g.project.ImportPath(path.Join(g.cfg.OutputDir, "runtime.go"))
}
