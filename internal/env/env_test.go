package env

import (
	"testing"

	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

func testRef(contents string) token.Ref {
	arr := token.New([]token.Token{{Kind: token.Symbol, Contents: contents}}).Freeze()

	return token.Ref{Array: arr, Index: 0}
}

func TestDefineDuplicate(t *testing.T) {
	e := New(log.Logger{})

	_, fresh := e.Define(testRef("add"), Function)
	if !fresh {
		t.Fatal("expected first Define to report fresh")
	}

	_, fresh = e.Define(testRef("add"), Function)
	if fresh {
		t.Error("expected second Define of the same name to report a duplicate")
	}
}

func TestReferenceStatusMonotonicity(t *testing.T) {
	st := &ReferenceStatus{State: None}

	if !st.Transition(Guessed) {
		t.Fatal("None -> Guessed should be legal")
	}

	if st.Transition(WaitingForLoad) {
		t.Error("Guessed -> WaitingForLoad should be illegal")
	}

	if !st.Transition(Resolved) {
		t.Fatal("Guessed -> Resolved should be legal")
	}

	if st.Transition(None) {
		t.Error("Resolved -> None should be illegal")
	}
}

func TestTeardownOrder(t *testing.T) {
	e := New(log.Logger{})

	def, _ := e.Define(testRef("add"), Function)
	ref := testRef("helper")
	pool := e.PoolFor("helper")
	pool.Add("helper", &ObjectReference{Source: ref.Array, Start: 0})

	arr := token.New(nil).Freeze()
	e.AdoptExpansion(arr)

	e.Teardown()

	if len(e.Pools) != 0 {
		t.Error("expected pools cleared after teardown")
	}

	if len(e.Definitions) != 0 {
		t.Error("expected definitions cleared after teardown")
	}

	if e.Expansions != nil {
		t.Error("expected expansions released after teardown")
	}

	_ = def
}
