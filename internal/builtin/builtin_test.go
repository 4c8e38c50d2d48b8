package builtin

import (
	"strings"
	"testing"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/eval"
	"github.com/ardnew/cakelisp/internal/lexer"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/internal/writer"
	"github.com/ardnew/cakelisp/log"
)

func lex(t *testing.T, source string) *token.Array {
	t.Helper()

	arr, err := lexer.New("t.cake", strings.NewReader(source)).Lex()
	if err != nil {
		t.Fatalf("Lex(%q) error = %v", source, err)
	}

	return arr
}

func write(t *testing.T, s *output.Stream) string {
	t.Helper()

	var sb strings.Builder
	if err := writer.WriteStream(&sb, s); err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}

	return sb.String()
}

func newEvaluator(e *env.Environment, diags *errs.Diagnostics) *eval.Evaluator {
	v := eval.New(e, eval.Options{}, diags, nil, log.Logger{})
	v.Invoker = NewFunctionInvoker(v)

	return v
}

func TestFunctionInvocationEmitsCall(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := newEvaluator(e, diags)

	arr := lex(t, `(printf a b)`)

	out := output.New()
	v.Invoker(e, env.Context{Scope: env.ExpressionsOnly, Env: e}, arr, 0, out)

	if !diags.OK() {
		t.Fatalf("unexpected diagnostics: %s", diags.String())
	}

	got := write(t, &out.Source)
	if got != "printf(a, b)" {
		t.Errorf("got %q, want %q", got, "printf(a, b)")
	}
}

func TestDefunEmitsDeclarationAndBody(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}
	v := newEvaluator(e, diags)

	e.Generators["return"] = Return(v)
	e.Generators["+"] = BinaryOp(v, "+")

	arr := lex(t, `(defun add (a int b int &return int) (return (+ a b)))`)

	ok := Defun(v)(e, env.Context{Scope: env.Module, Definition: "<global>", Env: e}, arr, 0, output.New())
	if !ok {
		t.Fatalf("Defun() returned false, diags: %s", diags.String())
	}

	if !diags.OK() {
		t.Fatalf("unexpected diagnostics: %s", diags.String())
	}

	def, ok := e.Lookup("add")
	if !ok {
		t.Fatal("expected Defun to register a definition named add")
	}

	header := write(t, &def.Output.Header)
	if header != "int add(int a, int b);\n" {
		t.Errorf("header = %q", header)
	}

	source := write(t, &def.Output.Source)
	if !strings.Contains(source, "int add(int a, int b) {") {
		t.Errorf("source missing declaration: %q", source)
	}

	if !strings.Contains(source, "return (a + b);") {
		t.Errorf("source missing returned expression: %q", source)
	}
}

func TestComptimeIfTakesThenBranchWhenTrue(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	arr := lex(t, `(comptime-if (1 == 1) ((foo)) ((bar)))`)

	var expansion []token.Token

	ok := ComptimeIf(diags)(e, env.Context{Env: e}, arr, 0, &expansion)
	if !ok {
		t.Fatalf("ComptimeIf() returned false, diags: %s", diags.String())
	}

	if !token.Balanced(expansion) {
		t.Fatal("expansion is not balanced")
	}

	names := symbolNames(expansion)
	if len(names) != 1 || names[0] != "foo" {
		t.Errorf("expansion symbols = %v, want [foo]", names)
	}
}

func TestComptimeIfTakesElseBranchWhenFalse(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	arr := lex(t, `(comptime-if (1 == 2) ((foo)) ((bar)))`)

	var expansion []token.Token

	ok := ComptimeIf(diags)(e, env.Context{Env: e}, arr, 0, &expansion)
	if !ok {
		t.Fatalf("ComptimeIf() returned false, diags: %s", diags.String())
	}

	names := symbolNames(expansion)
	if len(names) != 1 || names[0] != "bar" {
		t.Errorf("expansion symbols = %v, want [bar]", names)
	}
}

func TestComptimeAssertRecordsDiagnosticOnFailure(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	arr := lex(t, `(comptime-assert (1 == 2) "never happens")`)

	out := output.New()

	ok := ComptimeAssert(diags)(e, env.Context{Env: e}, arr, 0, out)
	if !ok {
		t.Fatal("ComptimeAssert() returned false for a well-formed guard")
	}

	if diags.Count() != 1 {
		t.Fatalf("expected one diagnostic, got %d: %s", diags.Count(), diags.String())
	}
}

func TestComptimeAssertSilentOnSuccess(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	arr := lex(t, `(comptime-assert (1 == 1) "never happens")`)

	out := output.New()

	ok := ComptimeAssert(diags)(e, env.Context{Env: e}, arr, 0, out)
	if !ok || diags.Count() != 0 {
		t.Fatalf("expected success with no diagnostics, got ok=%v diags=%s", ok, diags.String())
	}
}

func TestDefCompileTimeRegistersGeneratorDefinition(t *testing.T) {
	e := env.New(log.Logger{})
	diags := &errs.Diagnostics{}

	arr := lex(t, `(defgenerator square "out->Source.Append(Fragment{\"x * x\"}); return true;")`)

	ok := builtinDefCompileTime(t, diags)(e, env.Context{Scope: env.Module, Definition: "<global>", Env: e}, arr, 0, output.New())
	if !ok {
		t.Fatalf("DefCompileTime() returned false, diags: %s", diags.String())
	}

	def, ok := e.Lookup("square")
	if !ok {
		t.Fatal("expected defgenerator to register a definition named square")
	}

	if def.Kind != env.CompileTimeGenerator {
		t.Errorf("Kind = %v, want CompileTimeGenerator", def.Kind)
	}

	if !def.Required {
		t.Error("expected defgenerator's definition to be marked Required")
	}

	if def.Loaded {
		t.Error("a freshly defined compile-time definition must start unloaded")
	}
}

func builtinDefCompileTime(t *testing.T, diags *errs.Diagnostics) env.GeneratorFunc {
	t.Helper()

	return DefCompileTime(env.CompileTimeGenerator, diags)
}

func symbolNames(toks []token.Token) []string {
	var names []string

	for _, t := range toks {
		if t.Kind == token.Symbol {
			names = append(names, t.Contents)
		}
	}

	return names
}
