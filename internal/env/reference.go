package env

import (
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
)

// GuessState is the state machine described in spec.md §3 "ReferenceStatus".
// Transitions are monotonic: None -> Guessed | WaitingForLoad | Resolved,
// Guessed -> Resolved, WaitingForLoad -> Resolved. No state ever regresses
// (spec.md §8 property 4).
type GuessState int

const (
	// None means the symbol has been discovered but no action taken.
	None GuessState = iota
	// Guessed means no matching definition exists; the core speculatively
	// emitted the reference as a plain target-language function call.
	Guessed
	// Resolved means a definition was found (or loaded) and the site has
	// been regenerated definitively.
	Resolved
	// WaitingForLoad means a matching compile-time definition exists but is
	// not yet built; no guess is permitted while in this state.
	WaitingForLoad
)

func (g GuessState) String() string {
	switch g {
	case None:
		return "None"
	case Guessed:
		return "Guessed"
	case Resolved:
		return "Resolved"
	case WaitingForLoad:
		return "WaitingForLoad"
	default:
		return "Invalid"
	}
}

// legalTransition reports whether from -> to is one of the permitted
// monotonic transitions.
func legalTransition(from, to GuessState) bool {
	if from == to {
		return true
	}

	switch from {
	case None:
		return to == Guessed || to == WaitingForLoad || to == Resolved
	case Guessed:
		return to == Resolved
	case WaitingForLoad:
		return to == Resolved
	default:
		return false
	}
}

// ObjectReference is one textual call site naming a symbol, possibly before
// the symbol is defined (spec.md §3 "ObjectReference").
type ObjectReference struct {
	// Source is the token array containing the invocation.
	Source *token.Array
	// Start is the index of the invocation's open-paren.
	Start int
	// Ctx is the evaluator context snapshot captured when the reference was
	// first discovered.
	Ctx Context
	// Splice is the owned splice Output buffer filled when the reference
	// resolves. It is installed at Start's site via a splice-sentinel
	// fragment in the enclosing definition's Output.
	Splice *output.Buffer
	// Resolved reports whether this specific call site has undergone its
	// one definitive re-evaluation (spec.md §8 property 5).
	Resolved bool
}

// Name returns the symbol named at the reference's invocation head.
func (r *ObjectReference) Name() string {
	return r.Source.At(r.Start + 1).Contents
}

// Ref returns the stable (array, index) pointer to the invocation's
// open-paren, for diagnostics.
func (r *ObjectReference) Ref() token.Ref {
	return token.Ref{Array: r.Source, Index: r.Start}
}

// ReferenceStatus aggregates every occurrence within one definition that
// mentions one referenced symbol (spec.md §3 "ReferenceStatus").
type ReferenceStatus struct {
	// Name is the token of the first occurrence, used for diagnostics.
	Name token.Ref
	// Sites are every call site within the owning definition naming this
	// symbol. The slice may grow during the build driver's readiness loop
	// (guess-emission can synthesize new sites), so callers must iterate by
	// index rather than range over a previously captured slice header.
	Sites []*ObjectReference
	// State is the current guessState.
	State GuessState
}

// Transition moves the status to to if the transition is legal, returning
// whether it was applied. Illegal (regressive) transitions are silently
// rejected so that callers written defensively cannot corrupt the
// invariant; production code should only ever request legal transitions.
func (s *ReferenceStatus) Transition(to GuessState) bool {
	if !legalTransition(s.State, to) {
		return false
	}

	s.State = to

	return true
}

// AddSite appends a newly discovered call site for this symbol.
func (s *ReferenceStatus) AddSite(ref *ObjectReference) {
	s.Sites = append(s.Sites, ref)
}

// Pool is the global index from symbol name to every ObjectReference for
// that name across all definitions (spec.md §3 "Reference pool").
type Pool struct {
	byName map[string][]*ObjectReference
}

// NewPool allocates an empty reference pool.
func NewPool() *Pool {
	return &Pool{byName: make(map[string][]*ObjectReference)}
}

// Add registers ref under name.
func (p *Pool) Add(name string, ref *ObjectReference) {
	p.byName[name] = append(p.byName[name], ref)
}

// Lookup returns every reference registered for name.
func (p *Pool) Lookup(name string) []*ObjectReference {
	return p.byName[name]
}

// Names returns every symbol name with at least one pooled reference.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}

	return names
}

// Clear empties the pool. Called during teardown, before definition Outputs
// are released, since Outputs' splice buffers are reachable from the pool
// (spec.md §4.6).
func (p *Pool) Clear() {
	p.byName = make(map[string][]*ObjectReference)
}
