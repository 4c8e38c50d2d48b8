package require

import (
	"testing"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

func def(e *env.Environment, name string) *env.Definition {
	arr := token.New([]token.Token{{Kind: token.Symbol, Contents: name}}).Freeze()
	d, _ := e.Define(token.Ref{Array: arr, Index: 0}, env.Function)

	return d
}

func TestPropagateTransitiveClosure(t *testing.T) {
	e := env.New(log.Logger{})

	root := def(e, GlobalRoot)
	root.Required = true

	a := def(e, "a")
	b := def(e, "b")
	c := def(e, "c")
	unreachable := def(e, "unreachable")

	root.References["a"] = &env.ReferenceStatus{}
	a.References["b"] = &env.ReferenceStatus{}
	b.References["c"] = &env.ReferenceStatus{}
	_ = unreachable

	result := Propagate(e)

	if !a.Required || !b.Required || !c.Required {
		t.Fatalf("expected a, b, c all required; got a=%v b=%v c=%v", a.Required, b.Required, c.Required)
	}

	if unreachable.Required {
		t.Error("expected unreachable definition to remain unrequired")
	}

	if result.Transitions != 3 {
		t.Errorf("expected 3 transitions, got %d", result.Transitions)
	}

	if len(result.Omitted) != 1 || result.Omitted[0] != "unreachable" {
		t.Errorf("expected omitted = [unreachable], got %v", result.Omitted)
	}
}
