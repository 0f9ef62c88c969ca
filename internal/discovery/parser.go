package discovery

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/vk/crucible/pkg/routing"
)

// Directive marks an exported top-level function as a container entry.
// It accepts an optional routing key argument:
//
//	//crucible:entry
//	//crucible:entry key="instance-2"
//	//crucible:entry key=PickShard
const Directive = "//crucible:entry"

// parseModuleFile extracts the entry functions of one candidate file. It
// returns a nil slice (not an error) when the file has no entry directives:
// matched files without qualifying exports are simply not container modules.
func parseModuleFile(path string) ([]ExportDescriptor, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	topLevel := make(map[string]*ast.FuncDecl)
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil {
			topLevel[fn.Name.Name] = fn
		}
	}

	var exports []ExportDescriptor
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}
		directive, found := entryDirective(fn.Doc)
		if !found {
			continue
		}
		if fn.Recv != nil {
			return nil, fmt.Errorf("%s: entry directive on method %s; entries must be top-level functions", path, fn.Name.Name)
		}
		if !fn.Name.IsExported() {
			return nil, fmt.Errorf("%s: entry directive on unexported function %s", path, fn.Name.Name)
		}

		key, err := parseDirectiveArgs(directive)
		if err != nil {
			return nil, fmt.Errorf("%s: function %s: %w", path, fn.Name.Name, err)
		}
		if key.Kind == routing.KeyComputed {
			ref, ok := topLevel[key.FuncName]
			if !ok {
				return nil, fmt.Errorf("%s: function %s: key function %s not declared in this file", path, fn.Name.Name, key.FuncName)
			}
			if err := checkKeyFunc(ref); err != nil {
				return nil, fmt.Errorf("%s: function %s: %w", path, fn.Name.Name, err)
			}
		}

		results := signatureResults(fn.Type)
		// Remote dispatch can fail independently of the entry's own logic,
		// so every entry must surface an error to its caller.
		if len(results) == 0 || results[len(results)-1] != "error" {
			return nil, fmt.Errorf("%s: entry function %s must return error as its final result", path, fn.Name.Name)
		}

		exports = append(exports, ExportDescriptor{
			Name:    fn.Name.Name,
			Key:     key,
			Params:  signatureParams(fn.Type),
			Results: results,
		})
	}

	return exports, nil
}

// checkKeyFunc validates the shape of a computed routing key function.
// Generated proxies reference it from a separate package, so it must be
// exported and match func(context.Context, routing.CallContext) (string,
// error); any mismatch would otherwise surface as uncompilable output.
func checkKeyFunc(fn *ast.FuncDecl) error {
	if !fn.Name.IsExported() {
		return fmt.Errorf("key function %s must be exported; proxies call it from another package", fn.Name.Name)
	}
	params := signatureParams(fn.Type)
	results := signatureResults(fn.Type)
	shapeOK := len(params) == 2 &&
		params[0].Type == "context.Context" &&
		strings.HasSuffix(params[1].Type, "CallContext") &&
		len(results) == 2 && results[0] == "string" && results[1] == "error"
	if !shapeOK {
		return fmt.Errorf("key function %s must have the form func(context.Context, routing.CallContext) (string, error)", fn.Name.Name)
	}
	return nil
}

// entryDirective scans a doc comment group for the entry directive and
// returns the full directive line when present.
func entryDirective(doc *ast.CommentGroup) (string, bool) {
	for _, c := range doc.List {
		if c.Text == Directive || strings.HasPrefix(c.Text, Directive+" ") {
			return c.Text, true
		}
	}
	return "", false
}

// parseDirectiveArgs parses the argument list after the directive marker.
// The only recognized argument is `key`, whose value is either a quoted
// literal string or the name of a key function in the same file.
func parseDirectiveArgs(directive string) (routing.KeySpec, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, Directive))
	if rest == "" {
		return routing.NoKey(), nil
	}

	name, value, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(name) != "key" {
		return routing.KeySpec{}, fmt.Errorf("unrecognized directive argument %q", rest)
	}
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `"`) {
		// Scan the full quoted token first so literals may contain spaces.
		quoted, err := strconv.QuotedPrefix(value)
		if err != nil {
			return routing.KeySpec{}, fmt.Errorf("malformed key literal %s", value)
		}
		if trailing := strings.TrimSpace(value[len(quoted):]); trailing != "" {
			return routing.KeySpec{}, fmt.Errorf("unrecognized directive argument %q", trailing)
		}
		lit, err := strconv.Unquote(quoted)
		if err != nil {
			return routing.KeySpec{}, fmt.Errorf("malformed key literal %s", value)
		}
		if lit == "" {
			return routing.KeySpec{}, fmt.Errorf("key literal must not be empty")
		}
		return routing.LiteralKey(lit), nil
	}
	if !isIdentifier(value) {
		return routing.KeySpec{}, fmt.Errorf("key value %q is neither a quoted literal nor a function name", value)
	}
	return routing.ComputedKey(value), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			continue
		}
		if i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// signatureParams renders the parameter list verbatim so generated proxies
// can mirror the original signature exactly.
func signatureParams(ft *ast.FuncType) []Param {
	if ft.Params == nil {
		return nil
	}
	var params []Param
	for i, field := range ft.Params.List {
		typeStr := types.ExprString(field.Type)
		if len(field.Names) == 0 {
			params = append(params, Param{Name: fmt.Sprintf("arg%d", i), Type: typeStr})
			continue
		}
		for _, name := range field.Names {
			params = append(params, Param{Name: name.Name, Type: typeStr})
		}
	}
	return params
}

func signatureResults(ft *ast.FuncType) []string {
	if ft.Results == nil {
		return nil
	}
	var results []string
	for _, field := range ft.Results.List {
		typeStr := types.ExprString(field.Type)
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			results = append(results, typeStr)
		}
	}
	return results
}
