package generator

import (
	"fmt"
	"strings"

	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
)

// DispatchSurface generates the single addressable RPC surface: one struct
// carrying one flattened method per (module, export) pair. Flattening is
// required because the surface is one object, not one per module; the
// namespace prefix keeps same-named exports from distinct modules apart.
func (g *Generator) DispatchSurface(modules []discovery.ModuleDescriptor) *emitter.File {
	file := &emitter.File{
		Header:  header,
		Package: genPackage,
	}

	for i, module := range modules {
		file.Imports = append(file.Imports, emitter.Import{
			Alias: moduleAlias(i),
			Path:  g.project.ImportPath(module.RelativePath),
		})
	}

	file.Decls = append(file.Decls,
		emitter.Const{
			Doc:   "DispatchBinding is the name the surface is bound under in the server entry.",
			Name:  "DispatchBinding",
			Value: fmt.Sprintf("%q", g.cfg.DispatchBinding),
		},
		emitter.Struct{
			Doc:  fmt.Sprintf("%s is the RPC dispatch surface over every container export.", g.cfg.DispatchClass),
			Name: g.cfg.DispatchClass,
		},
	)

	recv := fmt.Sprintf("d *%s", g.cfg.DispatchClass)
	var tableLines []string
	tableLines = append(tableLines, "return map[string]any{")

	for i, module := range modules {
		alias := moduleAlias(i)
		for _, export := range module.Exports {
			method := flatMethodName(module.Namespace, export.Name)
			file.Decls = append(file.Decls, emitter.Func{
				Doc:     fmt.Sprintf("%s forwards to %s.%s.", method, module.Namespace, export.Name),
				Recv:    recv,
				Name:    method,
				Params:  emitParams(export.Params),
				Results: export.Results,
				Body: []string{
					fmt.Sprintf("return %s.%s(%s)", alias, export.Name, argNames(export.Params)),
				},
			})
			tableLines = append(tableLines, fmt.Sprintf("\t%q: d.%s,", method, method))
		}
	}
	tableLines = append(tableLines, "}")

	file.Decls = append(file.Decls, emitter.Func{
		Doc:     "Methods exposes every dispatch method by its flattened name,\nready to hand to dispatch.Serve.",
		Recv:    recv,
		Name:    "Methods",
		Results: []string{"map[string]any"},
		Body:    tableLines,
	})

	return file
}

func moduleAlias(i int) string {
	return fmt.Sprintf("m%d", i)
}

// flatMethodName builds the `{namespace}__{export}` dispatch name.
func flatMethodName(namespace, export string) string {
	return namespace + "__" + export
}

func emitParams(params []discovery.Param) []emitter.Param {
	out := make([]emitter.Param, len(params))
	for i, p := range params {
		out[i] = emitter.Param{Name: p.Name, Type: p.Type}
	}
	return out
}

func argNames(params []discovery.Param) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}
