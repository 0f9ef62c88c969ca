package routing

import "context"

// DefaultKey is the routing key used by entry functions that declare none.
const DefaultKey = "default"

// KeyKind discriminates the routing-key variants an entry function may declare.
type KeyKind int

const (
	// KeyNone means the entry declared no key; the default key applies.
	KeyNone KeyKind = iota
	// KeyLiteral means the entry declared a fixed string key.
	KeyLiteral
	// KeyComputed means the entry named a function that derives the key
	// from the call context at invocation time.
	KeyComputed
)

// KeySpec is the declared routing key of one entry function. It is a tagged
// variant resolved by matching on Kind, never by runtime type inspection.
type KeySpec struct {
	Kind     KeyKind
	Literal  string // set when Kind == KeyLiteral
	FuncName string // set when Kind == KeyComputed
}

// NoKey returns the spec for an entry without a declared key.
func NoKey() KeySpec { return KeySpec{Kind: KeyNone} }

// LiteralKey returns the spec for a fixed string key.
func LiteralKey(s string) KeySpec { return KeySpec{Kind: KeyLiteral, Literal: s} }

// ComputedKey returns the spec for a key derived by the named function.
func ComputedKey(funcName string) KeySpec { return KeySpec{Kind: KeyComputed, FuncName: funcName} }

// CallContext carries the identity and actual arguments of one proxy
// invocation. Computed key functions receive it to pick an instance, e.g.
// by hashing a tenant ID out of Args.
type CallContext struct {
	Namespace string
	Export    string
	Args      []any
}

// KeyFunc produces a routing key for a call. It may block (the key may
// itself require an asynchronous computation), so it takes a context.
type KeyFunc func(ctx context.Context, call CallContext) (string, error)

// Func returns the KeyFunc a proxy should evaluate for this spec. Computed
// specs are bound by the caller (the generated proxy links the named
// function); this helper covers the declarative variants.
func (s KeySpec) Func() KeyFunc {
	switch s.Kind {
	case KeyLiteral:
		lit := s.Literal
		return func(context.Context, CallContext) (string, error) { return lit, nil }
	default:
		return func(context.Context, CallContext) (string, error) { return DefaultKey, nil }
	}
}

// Resolver turns a routing key into a concrete backend identifier before a
// proxy dispatches its call.
type Resolver interface {
	// ResolveContainerKey evaluates fallback (nil means the default key)
	// and maps the resulting key to a backend identifier. The mapping must
	// be stable: one key, one backend, for the resolver's lifetime.
	ResolveContainerKey(ctx context.Context, namespace, export string, call CallContext, fallback KeyFunc) (string, error)
}
