// Package discovery scans the workspace for container modules and maintains
// the descriptor cache that drives incremental regeneration.
//
// A container module is a Go source file, matched by the configured glob
// patterns, that declares at least one entry function: an exported top-level
// function carrying a `//crucible:entry` directive. Discovery parses files
// syntactically (go/parser, never type-checking, never executing user code)
// and reduces each to a ModuleDescriptor.
//
// The cache maps absolute path to the last known descriptor. Dirtiness is
// structural: a cycle is dirty exactly when re-parsing produces a descriptor
// set that is not deeply equal to the cached one. File hashes and mtimes are
// deliberately not trusted — touching a comment or unexported helper must
// not trigger regeneration.
package discovery
