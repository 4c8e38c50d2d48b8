package eval

import (
	"strings"
	"testing"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/lexer"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

func TestDeferReferenceDiscoversUnknownSymbol(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := New(e, Options{}, diags, nil, log.Logger{})

	arr, err := lexer.New("t.cake", strings.NewReader("(printf 1)")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	def, _ := e.Define(definitionName("caller"), env.Function)
	def.Required = true

	ctx := env.Context{Scope: env.Body, Definition: def.Name.Token().Contents, Env: e}
	out := output.New()

	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out)

	status, ok := def.References["printf"]
	if !ok {
		t.Fatal("expected a reference status for printf")
	}

	if status.State != env.None {
		t.Errorf("expected initial state None, got %v", status.State)
	}

	if len(status.Sites) != 1 {
		t.Errorf("expected one reference site, got %d", len(status.Sites))
	}

	pooled := e.PoolFor("printf").Lookup("printf")
	if len(pooled) != 1 {
		t.Errorf("expected one pooled reference, got %d", len(pooled))
	}

	if diags.Count() != 0 {
		t.Errorf("expected no diagnostics, got %d: %s", diags.Count(), diags.String())
	}
}

func TestGuessedReferenceReemitsOnNewSite(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	invoked := 0
	invoker := func(ev *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		invoked++

		return true
	}

	v := New(e, Options{}, diags, invoker, log.Logger{})

	arr, err := lexer.New("t.cake", strings.NewReader("(printf 1)")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	def, _ := e.Define(definitionName("caller"), env.Function)

	ctx := env.Context{Scope: env.Body, Definition: def.Name.Token().Contents, Env: e}
	out := output.New()

	// First pass discovers the reference in state None.
	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out)

	status := def.References["printf"]
	status.Transition(env.Guessed)

	// A second evaluation of the same invocation should immediately
	// re-invoke the function-invocation generator since the symbol is
	// already in the Guessed state.
	out2 := output.New()
	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out2)

	if invoked != 1 {
		t.Errorf("expected invoker to run once for the guessed reference, got %d", invoked)
	}
}

func TestEmitSymbolLiteralVerbatim(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := New(e, Options{}, diags, nil, log.Logger{})

	arr, err := lexer.New("t.cake", strings.NewReader("42")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	ctx := env.Context{Scope: env.ExpressionsOnly, Env: e}
	out := output.New()

	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out)

	frags := out.Source.Fragments()
	if len(frags) != 1 || frags[0].Payload != "42" {
		t.Errorf("expected single literal fragment \"42\", got %+v", frags)
	}
}

func TestSymbolAtBodyScopeIsError(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := New(e, Options{}, diags, nil, log.Logger{})

	arr, err := lexer.New("t.cake", strings.NewReader("bare-symbol")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	ctx := env.Context{Scope: env.Body, Env: e}
	out := output.New()

	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out)

	if diags.Count() != 1 {
		t.Fatalf("expected one diagnostic, got %d", diags.Count())
	}
}

// definitionName builds a standalone name token, independent of whatever
// array a test is evaluating, so a definition's identity never collides
// with a symbol under test inside its body.
func definitionName(name string) token.Ref {
	arr := token.New([]token.Token{{Kind: token.Symbol, Contents: name}}).Freeze()

	return token.Ref{Array: arr, Index: 0}
}
