package generator

import (
	"fmt"

	"github.com/vk/crucible/internal/emitter"
)

// RuntimeMarker generates the always-present anchor module. It is
// independent of the discovered module set: proxies and the server entry
// hang their shared state (resolver, dispatch client) off this package, and
// its marker constant is what downstream tooling greps for to recognize a
// crucible-managed output tree.
func (g *Generator) RuntimeMarker() *emitter.File {
	return &emitter.File{
		Header:  header,
		Package: genPackage,
		Imports: []emitter.Import{
			{Path: "fmt"},
			{Path: "sync"},
			{Path: "github.com/vk/crucible/pkg/dispatch"},
			{Path: "github.com/vk/crucible/pkg/routing"},
		},
		Decls: []emitter.Decl{
			emitter.Const{
				Doc:   "RuntimeMarker identifies this tree as crucible-managed output.",
				Name:  "RuntimeMarker",
				Value: `"crucible.runtime/v1"`,
			},
			emitter.Const{
				Doc:   "Port is the network port the packaged container server listens on.",
				Name:  "Port",
				Value: fmt.Sprintf("%d", g.cfg.Port),
			},
			emitter.Var{Name: "mu", Type: "sync.Mutex"},
			emitter.Var{Name: "resolver", Type: "routing.Resolver"},
			emitter.Var{Name: "client", Type: "*dispatch.Client"},
			emitter.Func{
				Doc:    "Configure overrides the runtime's resolver and dispatch client.\nCall it before the first proxy invocation, typically from the host\ndev server; when left unconfigured the runtime targets one local\nbackend on Port.",
				Name:   "Configure",
				Params: []emitter.Param{{Name: "r", Type: "routing.Resolver"}, {Name: "c", Type: "*dispatch.Client"}},
				Body: []string{
					"mu.Lock()",
					"defer mu.Unlock()",
					"resolver = r",
					"client = c",
				},
			},
			emitter.Func{
				Doc:     "Resolver returns the active key resolver.",
				Name:    "Resolver",
				Results: []string{"routing.Resolver"},
				Body: []string{
					"mu.Lock()",
					"defer mu.Unlock()",
					"if resolver == nil {",
					"\tresolver = routing.NewTable(dispatch.StaticBackend(fmt.Sprintf(\"127.0.0.1:%d\", Port)))",
					"}",
					"return resolver",
				},
			},
			emitter.Func{
				Doc:     "Client returns the active dispatch client.",
				Name:    "Client",
				Results: []string{"*dispatch.Client"},
				Body: []string{
					"mu.Lock()",
					"defer mu.Unlock()",
					"if client == nil {",
					"\tclient = dispatch.NewClient()",
					"}",
					"return client",
				},
			},
		},
	}
}
