package generator

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"golang.org/x/mod/modfile"
)

// Project is the host Go module the orchestrator runs inside. Generated
// code imports container packages through its module path, and the packaged
// manifest lists its dependencies.
type Project struct {
	// ModulePath is the module line of the project's go.mod.
	ModulePath string
	// Name is the last element of the module path.
	Name string
	// Requires lists the module paths of all direct requirements, sorted.
	Requires []string
}

// LoadProject reads the go.mod at the project root.
func LoadProject(root string) (*Project, error) {
	gomodPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(gomodPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", gomodPath, err)
	}
	file, err := modfile.Parse(gomodPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", gomodPath, err)
	}
	if file.Module == nil || file.Module.Mod.Path == "" {
		return nil, fmt.Errorf("%s has no module declaration", gomodPath)
	}

	var requires []string
	for _, req := range file.Require {
		if !req.Indirect {
			requires = append(requires, req.Mod.Path)
		}
	}
	sort.Strings(requires)

	return &Project{
		ModulePath: file.Module.Mod.Path,
		Name:       path.Base(file.Module.Mod.Path),
		Requires:   requires,
	}, nil
}

// ImportPath returns the import path of the package holding a root-relative
// file.
func (p *Project) ImportPath(relFile string) string {
	dir := path.Dir(relFile)
	if dir == "." {
		return p.ModulePath
	}
	return p.ModulePath + "/" + dir
}
