package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/eval"
	"github.com/ardnew/cakelisp/internal/lexer"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

func newDriver(t *testing.T, e *env.Environment, v *eval.Evaluator) *Driver {
	t.Helper()

	return New(e, v, t.TempDir(), t.TempDir(), log.Logger{})
}

func addReference(t *testing.T, def *env.Definition, name string) *env.ReferenceStatus {
	t.Helper()

	arr, err := lexer.New("t.cake", strings.NewReader("("+name+")")).Lex()
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}

	site := &env.ObjectReference{
		Source: arr,
		Start:  0,
		Ctx:    env.Context{Scope: env.ExpressionsOnly},
		Splice: output.New(),
	}

	status := def.StatusFor(name)
	status.AddSite(site)

	return status
}

func TestReadinessCheckSuppressesRebuildOnFirstGuess(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	invoked := 0
	invoker := func(ev *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		invoked++

		return true
	}

	v := eval.New(e, eval.Options{}, diags, invoker, log.Logger{})

	def, _ := e.Define(token.Ref{Array: nameArray(t, "uses-helper"), Index: 0}, env.CompileTimeGenerator)
	def.Required = true

	status := addReference(t, def, "helper")

	d := newDriver(t, e, v)

	candidates := d.readinessCheck(nil)

	if status.State != env.Guessed {
		t.Errorf("status.State = %v, want Guessed", status.State)
	}

	if invoked != 1 {
		t.Errorf("invoked = %d, want 1", invoked)
	}

	if len(candidates) != 0 {
		t.Errorf("expected no candidates on the first guess (nothing to gain yet), got %d", len(candidates))
	}
}

func TestReadinessCheckQueuesOnRelevantChange(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := eval.New(e, eval.Options{}, diags, nil, log.Logger{})

	def, _ := e.Define(token.Ref{Array: nameArray(t, "uses-square"), Index: 0}, env.CompileTimeGenerator)
	def.Required = true

	status := addReference(t, def, "square")
	status.Transition(env.Guessed)

	loadedDef, _ := e.Define(token.Ref{Array: nameArray(t, "square"), Index: 0}, env.CompileTimeGenerator)
	loadedDef.Required = true
	loadedDef.Loaded = true

	d := newDriver(t, e, v)

	candidates := d.readinessCheck(nil)

	if status.State != env.Resolved {
		t.Errorf("status.State = %v, want Resolved", status.State)
	}

	found := false

	for _, c := range candidates {
		if c.Name == "uses-square" {
			found = true
		}
	}

	if !found {
		t.Errorf("expected uses-square to be queued after its guessed reference resolved")
	}
}

func TestReadinessCheckWaitsForUnloadedDependency(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := eval.New(e, eval.Options{}, diags, nil, log.Logger{})

	def, _ := e.Define(token.Ref{Array: nameArray(t, "uses-pending"), Index: 0}, env.CompileTimeGenerator)
	def.Required = true

	status := addReference(t, def, "pending")

	dep, _ := e.Define(token.Ref{Array: nameArray(t, "pending"), Index: 0}, env.CompileTimeGenerator)
	dep.Required = true

	d := newDriver(t, e, v)

	candidates := d.readinessCheck(nil)

	if status.State != env.WaitingForLoad {
		t.Errorf("status.State = %v, want WaitingForLoad", status.State)
	}

	for _, c := range candidates {
		if c.Name == "uses-pending" {
			t.Error("expected uses-pending to stay out of the queue while its dependency is unloaded")
		}
	}
}

func TestRunReportsFailureWithoutARealCompiler(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := eval.New(e, eval.Options{}, diags, nil, log.Logger{})

	def, _ := e.Define(token.Ref{Array: nameArray(t, "square"), Index: 0}, env.CompileTimeGenerator)
	def.Required = true
	def.Output.Source.Append(output.Fragment{Payload: "return true;"})

	d := newDriver(t, e, v)
	d.CompilerPath = "true" // stands in for a real c++ compiler: exits 0, writes nothing

	result := d.Run(context.Background())

	if result.Queued != 1 {
		t.Fatalf("Queued = %d, want 1", result.Queued)
	}

	if len(result.Objects) != 1 || result.Objects[0].Err == nil {
		t.Fatalf("expected the build object to report an error since no real object file was produced")
	}

	if def.Loaded {
		t.Error("definition should not be marked Loaded when the build pipeline fails")
	}

	if _, err := os.Stat(filepath.Join(d.CacheDir, "comptime_square.cpp")); err != nil {
		t.Errorf("expected generated source to be written: %v", err)
	}
}

// TestCommandSkipsCompileWhenSharedLibraryIsFresh covers spec.md §8 testable
// property 6 ("cache reuse: no compile or link subprocess is spawned") and
// scenario S6: freshnessUnchanged is pure filesystem/hash logic with no
// dependency on a real compiler, so it needs no external `c++` to exercise,
// unlike the build-and-load cycle the rest of this package's tests avoid.
func TestCommandSkipsCompileWhenSharedLibraryIsFresh(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := eval.New(e, eval.Options{}, diags, nil, log.Logger{})

	def, _ := e.Define(token.Ref{Array: nameArray(t, "cached"), Index: 0}, env.CompileTimeGenerator)
	def.Required = true
	def.Output.Source.Append(output.Fragment{Payload: "return true;"})

	d := newDriver(t, e, v)
	// A path that would fail loudly (or hang) if command() ever asked it to
	// actually compile anything; the assertion below is that it never does.
	d.CompilerPath = "/nonexistent-compiler-must-never-run"

	obj := &Object{ID: e.NextBuildID(), Definition: def, Name: "cached"}
	d.writeSource(obj)

	if obj.Err != nil {
		t.Fatalf("writeSource() error = %v", obj.Err)
	}

	if err := os.WriteFile(obj.SharedPath, []byte("stand-in shared library"), 0o644); err != nil {
		t.Fatalf("seed shared library: %v", err)
	}

	// Guarantee the shared library's mtime is not older than the source
	// file's, matching freshnessUnchanged's "cache hit" condition even on
	// filesystems with coarse mtime resolution.
	now := time.Now().Add(time.Minute)
	if err := os.Chtimes(obj.SharedPath, now, now); err != nil {
		t.Fatalf("Chtimes(%s): %v", obj.SharedPath, err)
	}

	if !d.freshnessUnchanged(obj) {
		t.Fatal("freshnessUnchanged() = false, want true for an unchanged source with a newer shared library")
	}

	cmd := d.command(Compiling, obj)

	if cmd.Path != "true" {
		t.Errorf("command(Compiling, obj).Path = %q, want %q (cache hit must skip the real compiler)", cmd.Path, "true")
	}

	if !obj.skippedCompile {
		t.Error("expected obj.skippedCompile to be set on a cache hit")
	}
}

func nameArray(t *testing.T, name string) *token.Array {
	t.Helper()

	return token.New([]token.Token{{Kind: token.Symbol, Contents: name}}).Freeze()
}
