// Package output models per-definition buffers of typed output fragments
// with splice points, per spec.md §3 "Output fragment".
package output

import "github.com/ardnew/cakelisp/internal/token"

// Modifier is a formatting bit applied to a Fragment at write time.
type Modifier uint16

const (
	SpaceAfter Modifier = 1 << iota
	NewlineAfter
	SurroundWithQuotes
	ConvertVariableName
	OpenParen
	CloseParen
	EndStatement
	SpliceSentinel
)

// Has reports whether m includes all bits in mask.
func (m Modifier) Has(mask Modifier) bool {
	return m&mask == mask
}

// Fragment is a single emitted unit of target-language text.
type Fragment struct {
	Payload   string
	Modifiers Modifier
	Origin    token.Ref // back-pointer to the originating token, for diagnostics
	Splice    *Buffer   // non-nil iff Modifiers.Has(SpliceSentinel)
}

// Stream is a destination for fragments: either a definition's C source
// stream or its header stream.
type Stream struct {
	fragments []Fragment
}

// Append adds a fragment to the stream.
func (s *Stream) Append(f Fragment) {
	s.fragments = append(s.fragments, f)
}

// Fragments returns the stream's fragments in emission order. The returned
// slice must not be mutated.
func (s *Stream) Fragments() []Fragment {
	return s.fragments
}

// Len reports the number of fragments currently in the stream.
func (s *Stream) Len() int {
	return len(s.fragments)
}

// Buffer is an Output buffer for one definition (or one splice): a source
// stream and a header stream, each an independent sequence of Fragments.
type Buffer struct {
	Source Stream
	Header Stream
}

// New allocates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Splice installs a splice-sentinel fragment at the current end of the
// source stream and returns the child Buffer that will later be filled.
// Because the sentinel reserves the fragment's position immediately, later
// fills into the returned child never reorder fragments already appended to
// the parent (spec.md §8 property 2).
func (b *Buffer) Splice(origin token.Ref) *Buffer {
	child := New()
	b.Source.Append(Fragment{
		Modifiers: SpliceSentinel,
		Origin:    origin,
		Splice:    child,
	})

	return child
}

// Clear empties a splice child's streams, used before a definitive
// re-evaluation of a reference so the prior speculative content does not
// linger alongside the new emission (spec.md §4.4 stage 5, §8 property 5).
func (b *Buffer) Clear() {
	b.Source.fragments = b.Source.fragments[:0]
	b.Header.fragments = b.Header.fragments[:0]
}
