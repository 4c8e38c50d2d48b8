// Package env implements the process-scoped registry of definitions,
// references, reference pools, macro/generator tables, and macro-expansion
// token arenas (spec.md §3 "Environment").
package env

import (
	"log/slog"
	"sync/atomic"

	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

// Kind identifies what an Object definition compiles down to.
type Kind int

const (
	// Function is an ordinary runtime function definition, emitted directly
	// as C/C++ with no compile-time execution.
	Function Kind = iota
	// CompileTimeMacro is a macro: invoked with raw tokens, returns more
	// tokens to be recursively evaluated.
	CompileTimeMacro
	// CompileTimeGenerator is a generator: invoked with the destination
	// Output buffer, emits fragments directly.
	CompileTimeGenerator
)

func (k Kind) String() string {
	switch k {
	case Function:
		return "Function"
	case CompileTimeMacro:
		return "CompileTimeMacro"
	case CompileTimeGenerator:
		return "CompileTimeGenerator"
	default:
		return "Invalid"
	}
}

// IsCompileTime reports whether k requires a build-and-load cycle before it
// can be invoked.
func (k Kind) IsCompileTime() bool {
	return k == CompileTimeMacro || k == CompileTimeGenerator
}

// Definition is a top-level named form producing a function, macro, or
// generator (spec.md §3 "Object definition").
type Definition struct {
	// Name is the stable token naming this definition.
	Name token.Ref
	Kind Kind
	// Output is the owned buffer accumulating this definition's emitted
	// fragments.
	Output *output.Buffer
	// Required reports whether requirement propagation has reached this
	// definition from the module root.
	Required bool
	// Loaded reports whether a compile-time definition's shared library has
	// been loaded and its table entry installed. Always true for Function.
	Loaded bool
	// References maps a referenced symbol name to the aggregated status of
	// every site within this definition that mentions it.
	References map[string]*ReferenceStatus
}

func (d *Definition) identifier() string {
	return d.Name.Token().Contents
}

// StatusFor returns the ReferenceStatus for name, creating one in state None
// if this is the first site discovered.
func (d *Definition) StatusFor(name string) *ReferenceStatus {
	st, ok := d.References[name]
	if !ok {
		st = &ReferenceStatus{State: None}
		d.References[name] = st
	}

	return st
}

// MacroFunc is the native Go function backing a loaded compile-time macro:
// it receives the environment, the evaluation context, the source tokens,
// the invocation's start index, and an output token accumulator, and
// returns ok (spec.md §6 "Macro entry-point signature").
type MacroFunc func(env *Environment, ctx Context, src *token.Array, start int, out *[]token.Token) bool

// GeneratorFunc is the native Go function backing a loaded compile-time
// generator: it emits fragments directly into the destination Output buffer
// (spec.md §6 "Generator entry-point signature").
type GeneratorFunc func(env *Environment, ctx Context, src *token.Array, start int, out *output.Buffer) bool

// Environment is the process-scoped aggregate owned by the caller and
// passed by mutable reference through the evaluator. There is no hidden
// process-wide singleton (spec.md §9 "Global mutable state").
type Environment struct {
	Definitions map[string]*Definition
	// Order records definition names in the order Define first created them,
	// so the final writer can emit the module's output in source order
	// rather than arbitrary map iteration order.
	Order []string
	Pools map[string]*Pool

	Macros     map[string]MacroFunc
	Generators map[string]GeneratorFunc

	// Expansions holds every macro-expansion token array produced during
	// this environment's lifetime. They are owned by the environment and
	// freed only at Teardown, because Output fragments and ReferenceStatus
	// entries hold stable references into them (spec.md §9 "Macro expansion
	// lifetime").
	Expansions []*token.Array

	buildID atomic.Uint64

	log log.Logger
}

// New constructs an empty Environment. A zero-value logger falls back to
// the package-level default logger.
func New(logger log.Logger) *Environment {
	if logger.Logger == nil {
		logger = log.With()
	}

	return &Environment{
		Definitions: make(map[string]*Definition),
		Pools:       make(map[string]*Pool),
		Macros:      make(map[string]MacroFunc),
		Generators:  make(map[string]GeneratorFunc),
		log:         logger,
	}
}

// NextBuildID returns a fresh, monotonically increasing build-object
// identifier.
func (e *Environment) NextBuildID() uint64 {
	return e.buildID.Add(1)
}

// PoolFor returns the reference pool for name, creating one if this is the
// first reference to that symbol.
func (e *Environment) PoolFor(name string) *Pool {
	p, ok := e.Pools[name]
	if !ok {
		p = NewPool()
		e.Pools[name] = p
	}

	return p
}

// Define registers a new definition, or reports a duplicate (spec.md §7
// "Duplicate definition") if the name is already taken.
func (e *Environment) Define(name token.Ref, kind Kind) (*Definition, bool) {
	id := name.Token().Contents
	if existing, ok := e.Definitions[id]; ok {
		return existing, false
	}

	def := &Definition{
		Name:       name,
		Kind:       kind,
		Output:     output.New(),
		Loaded:     kind == Function,
		References: make(map[string]*ReferenceStatus),
	}
	e.Definitions[id] = def
	e.Order = append(e.Order, id)

	return def, true
}

// Lookup returns the definition named name, if any.
func (e *Environment) Lookup(name string) (*Definition, bool) {
	d, ok := e.Definitions[name]

	return d, ok
}

// AdoptExpansion transfers ownership of a macro-expansion token array to the
// environment; it now lives for the life of the environment (spec.md §4.2).
func (e *Environment) AdoptExpansion(arr *token.Array) {
	e.Expansions = append(e.Expansions, arr)
}

// Teardown releases owned resources in the documented order: reference
// pools first (frees splice Outputs), then definition Outputs, then
// macro-expansion token arenas (spec.md §4.6). If expansion arenas remain
// going into the final step, it logs their count at trace level and frees
// them; everything that could retain pointers into them was already
// cleared, so a non-empty Expansions slice at that point is expected, not a
// sign of misuse.
func (e *Environment) Teardown() {
	for name, pool := range e.Pools {
		pool.Clear()
		delete(e.Pools, name)
	}

	for name, def := range e.Definitions {
		def.Output = nil
		delete(e.Definitions, name)
	}

	e.Order = nil

	if len(e.Expansions) > 0 {
		e.log.Trace("releasing macro-expansion arenas", slog.Int("count", len(e.Expansions)))
	}

	e.Expansions = nil
}
