// Package hclconf is the HCL implementation of the config.Loader interface.
// It reads a single `crucible.hcl` at the project root.
package hclconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/crucible/internal/config"
	"github.com/vk/crucible/internal/ctxlog"
)

// FileName is the project configuration file looked up at the root.
const FileName = "crucible.hcl"

// Loader is the HCL-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes the top-level attributes and blocks of crucible.hcl.
// env_passthrough stays a raw expression because it accepts either a list
// of names or a name-to-value map.
type fileRoot struct {
	Patterns        []string        `hcl:"patterns,optional"`
	OutputDir       string          `hcl:"output_dir,optional"`
	DispatchBinding string          `hcl:"dispatch_binding,optional"`
	DispatchClass   string          `hcl:"dispatch_class,optional"`
	Port            int             `hcl:"port,optional"`
	Externals       []string        `hcl:"externals,optional"`
	AutoRebuild     *bool           `hcl:"auto_rebuild,optional"`
	DebounceMS      int             `hcl:"debounce_ms,optional"`
	BundleCommand   []string        `hcl:"bundle_command,optional"`
	ImageDescriptor string          `hcl:"image_descriptor,optional"`
	EnvPassthrough  hcl.Expression  `hcl:"env_passthrough,optional"`
	Image           *imageBlock     `hcl:"image,block"`
}

type imageBlock struct {
	Base      string            `hcl:"base"`
	BuildArgs map[string]string `hcl:"build_args,optional"`
	Env       map[string]string `hcl:"env,optional"`
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, root string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	path := filepath.Join(root, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("No project configuration file, using defaults.", "path", path)
		return config.NewModel(), nil
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}

	var decoded fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}

	model := &config.Model{
		Patterns:            decoded.Patterns,
		OutputDir:           decoded.OutputDir,
		DispatchBinding:     decoded.DispatchBinding,
		DispatchClass:       decoded.DispatchClass,
		Port:                decoded.Port,
		Externals:           decoded.Externals,
		ImageDescriptorPath: decoded.ImageDescriptor,
		BundleCommand:       decoded.BundleCommand,
		Debounce:            time.Duration(decoded.DebounceMS) * time.Millisecond,
		AutoRebuild:         decoded.AutoRebuild == nil || *decoded.AutoRebuild,
	}
	if decoded.Image != nil {
		model.Image = &config.Image{
			Base:      decoded.Image.Base,
			BuildArgs: decoded.Image.BuildArgs,
			Env:       decoded.Image.Env,
		}
	}

	env, err := decodeEnvPassthrough(decoded.EnvPassthrough)
	if err != nil {
		return nil, fmt.Errorf("invalid env_passthrough in %s: %w", path, err)
	}
	model.EnvPassthrough = env

	model.ApplyDefaults()
	logger.Debug("Project configuration loaded.", "path", path, "patterns", model.Patterns)
	return model, nil
}

// decodeEnvPassthrough accepts either a list of variable names (inherited
// from the build environment) or a name-to-value map, and normalizes both
// into a map. An empty map value means "inherit".
func decodeEnvPassthrough(expr hcl.Expression) (map[string]string, error) {
	out := make(map[string]string)
	if expr == nil {
		return out, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return out, nil
	}

	ty := val.Type()
	switch {
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if elem.Type() != cty.String {
				return nil, fmt.Errorf("list form requires string names, got %s", elem.Type().FriendlyName())
			}
			out[elem.AsString()] = ""
		}
	case ty.IsObjectType() || ty.IsMapType():
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			if v.Type() != cty.String {
				return nil, fmt.Errorf("map form requires string values, got %s", v.Type().FriendlyName())
			}
			out[k.AsString()] = v.AsString()
		}
	default:
		return nil, fmt.Errorf("must be a list of names or a map of name to value, got %s", ty.FriendlyName())
	}
	return out, nil
}
