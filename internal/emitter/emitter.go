// Package emitter defines the declaration model handed to the source
// emitter, and the Emitter interface itself. Textual emission is an
// external concern: generators build declaration trees and never touch
// source text, which keeps them pure and their output byte-stable.
package emitter

// File is one generated source file, expressed as declarations.
type File struct {
	// Header is an optional banner comment placed above the package clause.
	Header  string
	Package string
	Imports []Import
	Decls   []Decl
}

// Import is a single import spec.
type Import struct {
	Alias string
	Path  string
}

// Decl is a marker interface over the declaration variants.
type Decl interface {
	decl()
}

// Const is a single top-level constant.
type Const struct {
	Doc   string
	Name  string
	Value string
}

// Var is a single top-level variable.
type Var struct {
	Doc   string
	Name  string
	Type  string
	Value string
}

// Struct is a top-level struct type declaration.
type Struct struct {
	Doc    string
	Name   string
	Fields []Field
}

// Field is one struct field.
type Field struct {
	Name string
	Type string
	Tag  string
}

// Func is a top-level function or method declaration.
type Func struct {
	Doc     string
	Recv    string // empty for plain functions, e.g. "d *Dispatch" for methods
	Name    string
	Params  []Param
	Results []string
	Body    []string // statements, one per line, already formatted
}

// Param is one parameter in a function signature.
type Param struct {
	Name string
	Type string
}

func (Const) decl()  {}
func (Var) decl()    {}
func (Struct) decl() {}
func (Func) decl()   {}

// Emitter renders a declaration file into source text. Implementations must
// be deterministic: identical input yields byte-identical output, which is
// what makes conditional writes and the watcher feedback-loop guard work.
type Emitter interface {
	Emit(f *File) ([]byte, error)
}
