package discovery

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/google/go-cmp/cmp"

	"github.com/vk/crucible/pkg/routing"
)

// ModuleDescriptor is the parsed identity of one container module.
type ModuleDescriptor struct {
	// AbsolutePath is the file's location on disk, the cache key.
	AbsolutePath string
	// RelativePath is the project-root-relative path, the namespace source.
	RelativePath string
	// Namespace is the sanitized identifier deriving generated names for
	// this module. Distinct paths never share a namespace.
	Namespace string
	// Exports lists the module's entry functions in source order.
	Exports []ExportDescriptor
}

// ExportDescriptor is one entry function of a container module.
type ExportDescriptor struct {
	// Name is the exported function name.
	Name string
	// Key is the declared routing key. A zero KeySpec means the default
	// key applies.
	Key routing.KeySpec
	// Params and Results are the type expressions of the function
	// signature, carried verbatim so proxies can mirror it exactly.
	Params  []Param
	Results []string
}

// Param is one parameter of an entry function signature.
type Param struct {
	Name string
	Type string
}

// Equal reports deep structural equality with another descriptor. This is
// the sole dirty signal for regeneration.
func (d *ModuleDescriptor) Equal(other *ModuleDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return cmp.Equal(*d, *other)
}

// namespaceBase sanitizes a trimmed relative path into a candidate
// namespace: the .go suffix dropped, path separators doubled to `__`, every
// other non-identifier rune flattened to `_`, digit-initial names prefixed.
// The result is not guaranteed unique; assignNamespaces resolves collisions.
func namespaceBase(trimmedRel string) string {
	s := strings.TrimSuffix(trimmedRel, ".go")

	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '/':
			sb.WriteString("__")
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}

	out := sb.String()
	if out == "" {
		out = "module"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "c" + out
	}
	return out
}

// namespaceSuffix is the deterministic disambiguator appended when two
// distinct paths sanitize to the same base: an FNV-1a hash of the relative
// path, so the suffix depends only on the path itself.
func namespaceSuffix(relPath string) string {
	h := fnv.New32a()
	h.Write([]byte(relPath))
	return fmt.Sprintf("_%08x", h.Sum32())
}
