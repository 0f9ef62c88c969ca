package generator

import (
	"fmt"
	"strings"

	"github.com/vk/crucible/internal/discovery"
	"github.com/vk/crucible/internal/emitter"
	"github.com/vk/crucible/pkg/routing"
)

// Proxy generates the typed client package for one container module. Each
// export gets a wrapper with the export's exact signature that resolves the
// routing key, dispatches over the batch client, and decodes each result
// back into its static type. Callers import the proxy package instead of
// the container package and never see the transport.
func (g *Generator) Proxy(module discovery.ModuleDescriptor) *emitter.File {
	file := &emitter.File{
		Header:  header,
		Package: module.Namespace,
		Imports: []emitter.Import{
			{Path: "context"},
		},
	}

	if anyDecodedResults(module) {
		file.Imports = append(file.Imports,
			emitter.Import{Path: "encoding/json"},
			emitter.Import{Path: "fmt"},
		)
	}
	file.Imports = append(file.Imports,
		emitter.Import{Alias: "gen", Path: g.genImportPath()},
		emitter.Import{Path: "github.com/vk/crucible/pkg/routing"},
	)
	if anyComputedKeys(module) {
		file.Imports = append(file.Imports, emitter.Import{
			Alias: "m",
			Path:  g.project.ImportPath(module.RelativePath),
		})
	}

	for _, export := range module.Exports {
		file.Decls = append(file.Decls, g.proxyFunc(module, export))
	}

	return file
}

// proxyFunc builds one proxy wrapper. The final result of every export is
// error, so the wrapper declares the preceding results as locals and
// returns them on every path; this keeps zero values implicit regardless
// of the result types.
func (g *Generator) proxyFunc(module discovery.ModuleDescriptor, export discovery.ExportDescriptor) emitter.Func {
	outs := export.Results[:len(export.Results)-1]

	outNames := make([]string, len(outs))
	for i := range outs {
		outNames[i] = fmt.Sprintf("out%d", i)
	}
	errReturn := strings.Join(append(append([]string{}, outNames...), "err"), ", ")

	var body []string
	for i, typ := range outs {
		body = append(body, fmt.Sprintf("var %s %s", outNames[i], typ))
	}

	ctxName, wireParams := splitContextParam(export.Params)
	if ctxName == "" {
		ctxName = "ctx"
		body = append(body, "ctx := context.Background()")
	}

	args := make([]string, len(wireParams))
	for i, p := range wireParams {
		args[i] = p.Name
	}
	body = append(body,
		"call := routing.CallContext{",
		fmt.Sprintf("\tNamespace: %q,", module.Namespace),
		fmt.Sprintf("\tExport:    %q,", export.Name),
		fmt.Sprintf("\tArgs:      []any{%s},", strings.Join(args, ", ")),
		"}",
	)

	callExpr := fmt.Sprintf("gen.Client().Call(%s, backend, %q, call.Args)", ctxName, flatMethodName(module.Namespace, export.Name))
	resultVar := "results, err :="
	if len(outs) == 0 {
		resultVar = "_, err ="
	}
	body = append(body,
		fmt.Sprintf("backend, err := gen.Resolver().ResolveContainerKey(%s, call.Namespace, call.Export, call, %s)", ctxName, keyFallback(export.Key)),
		"if err != nil {",
		fmt.Sprintf("\treturn %s", errReturn),
		"}",
		fmt.Sprintf("%s %s", resultVar, callExpr),
		"if err != nil {",
		fmt.Sprintf("\treturn %s", errReturn),
		"}",
	)

	if len(outs) > 0 {
		body = append(body,
			fmt.Sprintf("if len(results) != %d {", len(outs)),
			fmt.Sprintf("\terr = fmt.Errorf(\"%s.%s: expected %d results, got %%d\", len(results))", module.Namespace, export.Name, len(outs)),
			fmt.Sprintf("\treturn %s", errReturn),
			"}",
		)
		for i := range outs {
			body = append(body,
				fmt.Sprintf("if err = json.Unmarshal(results[%d], &%s); err != nil {", i, outNames[i]),
				fmt.Sprintf("\terr = fmt.Errorf(\"%s.%s: decoding result %d: %%w\", err)", module.Namespace, export.Name, i),
				fmt.Sprintf("\treturn %s", errReturn),
				"}",
			)
		}
	}

	body = append(body, fmt.Sprintf("return %s", strings.Join(append(append([]string{}, outNames...), "nil"), ", ")))

	return emitter.Func{
		Doc:     fmt.Sprintf("%s invokes the %s export of the %s container.", export.Name, export.Name, module.Namespace),
		Name:    export.Name,
		Params:  emitParams(export.Params),
		Results: export.Results,
		Body:    body,
	}
}

// keyFallback renders the routing.KeyFunc expression for a declared key.
// Computed keys reference the user's function through the container import;
// the other variants are declarative and never need it.
func keyFallback(key routing.KeySpec) string {
	switch key.Kind {
	case routing.KeyLiteral:
		return fmt.Sprintf("routing.LiteralKey(%q).Func()", key.Literal)
	case routing.KeyComputed:
		return "routing.KeyFunc(m." + key.FuncName + ")"
	default:
		return "nil"
	}
}

// splitContextParam peels a leading context.Context parameter off the
// signature. The context travels through the resolver and client instead of
// the wire; every other parameter is a call argument.
func splitContextParam(params []discovery.Param) (ctxName string, rest []discovery.Param) {
	if len(params) > 0 && params[0].Type == "context.Context" {
		return params[0].Name, params[1:]
	}
	return "", params
}

func anyComputedKeys(module discovery.ModuleDescriptor) bool {
	for _, export := range module.Exports {
		if export.Key.Kind == routing.KeyComputed {
			return true
		}
	}
	return false
}

func anyDecodedResults(module discovery.ModuleDescriptor) bool {
	for _, export := range module.Exports {
		if len(export.Results) > 1 {
			return true
		}
	}
	return false
}
