package writer

import (
	"strings"
	"testing"

	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
)

func TestWriteStreamBasic(t *testing.T) {
	b := output.New()
	b.Source.Append(output.Fragment{Payload: "int", Modifiers: output.SpaceAfter})
	b.Source.Append(output.Fragment{Payload: "add", Modifiers: output.OpenParen | output.SpaceAfter})
	b.Source.Append(output.Fragment{Payload: "a", Modifiers: output.CloseParen | output.EndStatement})

	var sb strings.Builder
	if err := WriteStream(&sb, &b.Source); err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}

	want := "int (add a);"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}

func TestWriteStreamSplicePositionalStability(t *testing.T) {
	b := output.New()
	b.Source.Append(output.Fragment{Payload: "before", Modifiers: output.SpaceAfter})
	arr := token.New([]token.Token{{Kind: token.OpenParen}}).Freeze()
	child := b.Splice(token.Ref{Array: arr, Index: 0})
	b.Source.Append(output.Fragment{Payload: "after"})

	// Fill the splice after the surrounding fragments were already written.
	child.Source.Append(output.Fragment{Payload: "filled", Modifiers: output.SpaceAfter})

	var sb strings.Builder
	if err := WriteStream(&sb, &b.Source); err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}

	want := "before filled after"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}
