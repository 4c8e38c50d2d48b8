package output

import (
	"testing"

	"github.com/ardnew/cakelisp/internal/token"
)

func TestSpliceReservesPositionBeforeLaterAppends(t *testing.T) {
	b := New()
	b.Source.Append(Fragment{Payload: "before"})
	child := b.Splice(token.Ref{})
	b.Source.Append(Fragment{Payload: "after"})

	frags := b.Source.Fragments()
	if len(frags) != 3 {
		t.Fatalf("Fragments() len = %d, want 3", len(frags))
	}
	if frags[0].Payload != "before" {
		t.Errorf("frags[0] = %q, want before", frags[0].Payload)
	}
	if !frags[1].Modifiers.Has(SpliceSentinel) || frags[1].Splice != child {
		t.Errorf("frags[1] is not the splice sentinel pointing at child")
	}
	if frags[2].Payload != "after" {
		t.Errorf("frags[2] = %q, want after", frags[2].Payload)
	}

	child.Source.Append(Fragment{Payload: "filled-in-later"})

	// The parent's fragment order must be unaffected by filling the child
	// after the fact: the sentinel's position was reserved up front.
	frags = b.Source.Fragments()
	if frags[0].Payload != "before" || frags[2].Payload != "after" {
		t.Errorf("parent fragment order changed after filling child, got %v", frags)
	}
	if child.Source.Fragments()[0].Payload != "filled-in-later" {
		t.Errorf("child fragment not recorded")
	}
}

func TestClearEmptiesBothStreams(t *testing.T) {
	b := New()
	b.Source.Append(Fragment{Payload: "stale-source"})
	b.Header.Append(Fragment{Payload: "stale-header"})

	b.Clear()

	if b.Source.Len() != 0 {
		t.Errorf("Source.Len() = %d after Clear(), want 0", b.Source.Len())
	}
	if b.Header.Len() != 0 {
		t.Errorf("Header.Len() = %d after Clear(), want 0", b.Header.Len())
	}
}

func TestModifierHasChecksAllBitsInMask(t *testing.T) {
	m := SpaceAfter | NewlineAfter

	if !m.Has(SpaceAfter) {
		t.Error("Has(SpaceAfter) = false, want true")
	}
	if m.Has(OpenParen) {
		t.Error("Has(OpenParen) = true, want false")
	}
	if !m.Has(SpaceAfter | NewlineAfter) {
		t.Error("Has(SpaceAfter|NewlineAfter) = false, want true")
	}
	if m.Has(SpaceAfter | OpenParen) {
		t.Error("Has(SpaceAfter|OpenParen) = true, want false (only part of mask set)")
	}
}

func TestStreamLenTracksAppends(t *testing.T) {
	var s Stream
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}

	s.Append(Fragment{Payload: "a"})
	s.Append(Fragment{Payload: "b"})

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}
