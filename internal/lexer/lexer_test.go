package lexer

import (
	"strings"
	"testing"

	"github.com/ardnew/cakelisp/internal/token"
)

func TestLexSimpleForm(t *testing.T) {
	arr, err := New("t.cake", strings.NewReader(`(defun add (a int b int &return int) (return (+ a b)))`)).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	if arr.Len() == 0 {
		t.Fatal("expected tokens, got none")
	}

	if got := arr.At(0).Kind; got != token.OpenParen {
		t.Errorf("first token kind = %v, want OpenParen", got)
	}

	if !arr.Frozen() {
		t.Error("expected Lex() to return a frozen array")
	}
}

func TestLexString(t *testing.T) {
	arr, err := New("t.cake", strings.NewReader(`("hello world")`)).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	want := []token.Kind{token.OpenParen, token.String, token.CloseParen}
	if arr.Len() != len(want) {
		t.Fatalf("got %d tokens, want %d", arr.Len(), len(want))
	}

	for i, k := range want {
		if arr.At(i).Kind != k {
			t.Errorf("token[%d].Kind = %v, want %v", i, arr.At(i).Kind, k)
		}
	}

	if arr.At(1).Contents != "hello world" {
		t.Errorf("string contents = %q, want %q", arr.At(1).Contents, "hello world")
	}
}

func TestLexUnbalancedParens(t *testing.T) {
	if _, err := New("t.cake", strings.NewReader(`(defun add`)).Lex(); err == nil {
		t.Error("expected error for unbalanced parens, got nil")
	}

	if _, err := New("t.cake", strings.NewReader(`(defun add))`)).Lex(); err == nil {
		t.Error("expected error for unbalanced close paren, got nil")
	}
}

func TestLexLineComment(t *testing.T) {
	arr, err := New("t.cake", strings.NewReader("(add a b) ; trailing comment\n(sub a b)")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	// Two balanced forms of 5 tokens each, comment produces no tokens.
	if arr.Len() != 10 {
		t.Errorf("got %d tokens, want 10", arr.Len())
	}
}

func TestIsLiteral(t *testing.T) {
	cases := []struct {
		contents string
		literal  bool
	}{
		{"'a", true},
		{"3", true},
		{"-3", true},
		{"-.5", true},
		{"add", false},
		{"-add", false},
	}

	for _, c := range cases {
		tok := token.Token{Kind: token.Symbol, Contents: c.contents}
		if got := tok.IsLiteral(); got != c.literal {
			t.Errorf("IsLiteral(%q) = %v, want %v", c.contents, got, c.literal)
		}
	}
}
