package emitter

import (
	"fmt"
	"strings"
)

// TextEmitter is the built-in Emitter: a plain, deterministic renderer with
// gofmt-compatible spacing. It exists so the orchestrator works out of the
// box; a fancier AST-based emitter can be substituted through the interface.
type TextEmitter struct{}

// NewTextEmitter creates the default emitter.
func NewTextEmitter() *TextEmitter {
	return &TextEmitter{}
}

// Emit implements Emitter.
func (e *TextEmitter) Emit(f *File) ([]byte, error) {
	if f.Package == "" {
		return nil, fmt.Errorf("emit: file has no package name")
	}

	var sb strings.Builder
	if f.Header != "" {
		writeComment(&sb, f.Header, "")
	}
	fmt.Fprintf(&sb, "package %s\n", f.Package)

	if len(f.Imports) > 0 {
		sb.WriteString("\nimport (\n")
		for _, imp := range f.Imports {
			if imp.Alias != "" {
				fmt.Fprintf(&sb, "\t%s %q\n", imp.Alias, imp.Path)
			} else {
				fmt.Fprintf(&sb, "\t%q\n", imp.Path)
			}
		}
		sb.WriteString(")\n")
	}

	for _, d := range f.Decls {
		sb.WriteString("\n")
		switch decl := d.(type) {
		case Const:
			writeComment(&sb, decl.Doc, "")
			fmt.Fprintf(&sb, "const %s = %s\n", decl.Name, decl.Value)
		case Var:
			writeComment(&sb, decl.Doc, "")
			switch {
			case decl.Type != "" && decl.Value != "":
				fmt.Fprintf(&sb, "var %s %s = %s\n", decl.Name, decl.Type, decl.Value)
			case decl.Type != "":
				fmt.Fprintf(&sb, "var %s %s\n", decl.Name, decl.Type)
			default:
				fmt.Fprintf(&sb, "var %s = %s\n", decl.Name, decl.Value)
			}
		case Struct:
			writeComment(&sb, decl.Doc, "")
			fmt.Fprintf(&sb, "type %s struct {\n", decl.Name)
			for _, field := range decl.Fields {
				if field.Tag != "" {
					fmt.Fprintf(&sb, "\t%s %s `%s`\n", field.Name, field.Type, field.Tag)
				} else {
					fmt.Fprintf(&sb, "\t%s %s\n", field.Name, field.Type)
				}
			}
			sb.WriteString("}\n")
		case Func:
			writeComment(&sb, decl.Doc, "")
			sb.WriteString("func ")
			if decl.Recv != "" {
				fmt.Fprintf(&sb, "(%s) ", decl.Recv)
			}
			fmt.Fprintf(&sb, "%s(%s)%s {\n", decl.Name, renderParams(decl.Params), renderResults(decl.Results))
			for _, line := range decl.Body {
				if line == "" {
					sb.WriteString("\n")
				} else {
					fmt.Fprintf(&sb, "\t%s\n", line)
				}
			}
			sb.WriteString("}\n")
		default:
			return nil, fmt.Errorf("emit: unknown declaration type %T", d)
		}
	}

	return []byte(sb.String()), nil
}

func renderParams(params []Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Name == "" {
			parts[i] = p.Type
		} else {
			parts[i] = p.Name + " " + p.Type
		}
	}
	return strings.Join(parts, ", ")
}

func renderResults(results []string) string {
	switch len(results) {
	case 0:
		return ""
	case 1:
		return " " + results[0]
	default:
		return " (" + strings.Join(results, ", ") + ")"
	}
}

func writeComment(sb *strings.Builder, text, indent string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			fmt.Fprintf(sb, "%s//\n", indent)
		} else {
			fmt.Fprintf(sb, "%s// %s\n", indent, line)
		}
	}
}
