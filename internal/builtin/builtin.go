// Package builtin provides the in-scope-only-by-dispatch built-in
// generators for function/variable definitions and for compile-time
// constant-folding guards (spec.md §1 "The built-in generators are in scope
// only in that the core must dispatch to them; their code-emission
// contents are not" — this package supplies those contents).
package builtin

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/eval"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
)

// NewFunctionInvoker returns the built-in function-invocation generator,
// shaped to satisfy both [eval.FunctionInvoker] (dispatch step 3 and the
// guess re-emission paths) and [env.GeneratorFunc] (readiness-check
// re-emission in the build driver, spec.md §4.4). It evaluates each
// argument expression through v so nested invocations are handled
// recursively, then joins them with ", ".
func NewFunctionInvoker(v *eval.Evaluator) eval.FunctionInvoker {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		name := src.At(start + 1).Contents
		close := src.MatchParen(start)

		out.Source.Append(output.Fragment{
			Payload: name,
			Origin:  token.Ref{Array: src, Index: start},
		})
		out.Source.Append(output.Fragment{Modifiers: output.OpenParen, Payload: ""})

		argCtx := ctx.WithScope(env.ExpressionsOnly)
		comma := output.Fragment{Payload: ",", Modifiers: output.SpaceAfter}

		v.EvaluateGenerateAll(argCtx, src, start+2, close, &comma, out)

		last := len(out.Source.Fragments()) - 1
		if last >= 0 {
			frags := out.Source.Fragments()
			frags[last].Modifiers |= output.CloseParen
		} else {
			out.Source.Append(output.Fragment{Modifiers: output.CloseParen})
		}

		return true
	}
}

// Return is the built-in generator for `(return expr)`.
func Return(v *eval.Evaluator) env.GeneratorFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		close := src.MatchParen(start)

		out.Source.Append(output.Fragment{Payload: "return", Modifiers: output.SpaceAfter})
		v.EvaluateGenerateAll(ctx.WithScope(env.ExpressionsOnly), src, start+2, close, nil, out)

		last := len(out.Source.Fragments()) - 1
		if last >= 0 {
			frags := out.Source.Fragments()
			frags[last].Modifiers |= output.EndStatement | output.NewlineAfter
		}

		return true
	}
}

// BinaryOp returns a generator for a variadic left-associated infix operator
// such as `(+ a b c)` -> `(a + b + c)`.
func BinaryOp(v *eval.Evaluator, op string) env.GeneratorFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		close := src.MatchParen(start)

		out.Source.Append(output.Fragment{Modifiers: output.OpenParen})
		delim := output.Fragment{Payload: " " + op + " "}

		argCtx := ctx.WithScope(env.ExpressionsOnly)
		v.EvaluateGenerateAll(argCtx, src, start+2, close, &delim, out)

		last := len(out.Source.Fragments()) - 1
		if last >= 0 {
			frags := out.Source.Fragments()
			frags[last].Modifiers |= output.CloseParen
		}

		return true
	}
}

// Defun is the built-in generator for function definitions:
//
//	(defun name (arg1 type1 arg2 type2 ... &return returnType) body...)
//
// Unlike the expression-level generators (Return, BinaryOp), Defun does not
// write into the out buffer passed by the dispatcher: a top-level defun
// form introduces a brand new Definition of its own, so it registers one
// with the environment and writes the declaration and body into that
// definition's own Output buffer.
func Defun(v *eval.Evaluator) env.GeneratorFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		nameRef := token.Ref{Array: src, Index: start + 2}
		name := src.At(start + 2).Contents

		def, created := e.Define(nameRef, env.Function)
		if !created {
			v.Diags.Add(errs.Diagnostic{
				Loc: errs.Location{File: src.At(start + 2).File, Line: src.At(start + 2).Line, Column: src.At(start + 2).ColStart},
				Err: errs.ErrDuplicateDefinition.With(slog.String("name", name)),
			})

			return false
		}

		// defun only ever fires at module scope, directly against the token
		// stream the module evaluator is walking: there is no reference edge
		// from the root to pick this definition up, so mark it required here
		// for require.Propagate to start from.
		def.Required = true

		paramsStart := start + 3
		paramsEnd := src.MatchParen(paramsStart)

		sig, returnType := parseSignature(src, paramsStart, paramsEnd)

		decl := returnType + " " + name + "(" + sig + ")"

		def.Output.Header.Append(output.Fragment{Payload: decl, Modifiers: output.EndStatement | output.NewlineAfter})
		def.Output.Source.Append(output.Fragment{Payload: decl + " {", Modifiers: output.NewlineAfter})

		bodyCtx := ctx.WithScope(env.Body).WithDefinition(name)
		v.EvaluateGenerateAll(bodyCtx, src, paramsEnd+1, src.MatchParen(start), nil, def.Output)

		def.Output.Source.Append(output.Fragment{Payload: "}", Modifiers: output.NewlineAfter})

		return true
	}
}

// DefCompileTime returns the built-in generator for the two forms that
// introduce a compile-time definition from raw target-language source:
//
//	(defmacro name "<c++ body implementing a MacroFunc>")
//	(defgenerator name "<c++ body implementing a GeneratorFunc>")
//
// The body is a single string literal holding the statements that go inside
// the entry-point signature the build driver writes around it
// (spec.md §6's macro/generator entry-point signatures); DefCompileTime does
// not interpret the body, it only registers the definition and stashes the
// text for the build driver to compile.
func DefCompileTime(kind env.Kind, diags *errs.Diagnostics) env.GeneratorFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		nameTok := src.At(start + 2)
		nameRef := token.Ref{Array: src, Index: start + 2}
		name := nameTok.Contents

		def, created := e.Define(nameRef, kind)
		if !created {
			diags.Add(errs.Diagnostic{
				Loc: errs.Location{File: nameTok.File, Line: nameTok.Line, Column: nameTok.ColStart},
				Err: errs.ErrDuplicateDefinition.With(slog.String("name", name)),
			})

			return false
		}

		def.Required = true

		body := src.At(start + 3)
		if body.Kind != token.String {
			diags.Add(errs.Diagnostic{
				Loc: errs.Location{File: body.File, Line: body.Line, Column: body.ColStart},
				Err: errs.New("compile-time definition body must be a string literal").With(slog.String("name", name)),
			})

			return false
		}

		def.Output.Source.Append(output.Fragment{Payload: body.Contents})

		return true
	}
}

func parseSignature(src *token.Array, lo, hi int) (sig, returnType string) {
	returnType = "void"

	var params []string

	for i := lo; i < hi; {
		t := src.At(i)
		if t.Kind != token.Symbol {
			i++

			continue
		}

		if t.Contents == "&return" {
			if i+1 < hi {
				returnType = src.At(i + 1).Contents
			}

			break
		}

		if i+1 < hi && src.At(i+1).Kind == token.Symbol {
			argName, argType := t.Contents, src.At(i+1).Contents
			params = append(params, argType+" "+argName)
			i += 2

			continue
		}

		i++
	}

	return strings.Join(params, ", "), returnType
}

// exprEnv builds the scalar environment exposed to comptime-if/
// comptime-assert guard expressions: the process environment, string-keyed,
// mirroring lang/compile.go's envFunc approach for the aenv DSL.
func exprEnv() map[string]any {
	m := make(map[string]any)

	for _, kv := range os.Environ() {
		if key, val, ok := strings.Cut(kv, "="); ok {
			m[key] = val
		}
	}

	m["env"] = func(key string) string { return os.Getenv(key) }

	return m
}

// ComptimeIf is the built-in macro for `(comptime-if <expr> (then...) (else...))`.
// <expr> is compiled and run with expr-lang against the process environment;
// its result must be a bool. The chosen branch's forms are returned for
// recursive evaluation by the dispatcher; comptime-if performs no
// interpretation of the source language itself, only constant folding of
// its own boolean guard (spec.md Non-goals: "no interpretation").
func ComptimeIf(diags *errs.Diagnostics) env.MacroFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *[]token.Token) bool {
		guardStart := start + 2
		guardEnd := guardTokenEnd(src, guardStart)

		result, ok := evalGuard(src, guardStart, guardEnd, diags)
		if !ok {
			return false
		}

		thenStart := guardEnd
		thenEnd := src.MatchParen(thenStart)

		branchLo, branchHi := thenStart+1, thenEnd

		if !result {
			elseStart := thenEnd + 1
			if elseStart >= src.MatchParen(start) {
				return true // no else branch: emit nothing
			}

			elseEnd := src.MatchParen(elseStart)
			branchLo, branchHi = elseStart+1, elseEnd
		}

		*out = append(*out, src.Slice(branchLo, branchHi)...)

		return true
	}
}

// ComptimeAssert is the built-in generator for
// `(comptime-assert <expr> "message")`: if the guard expression evaluates
// false, it records a diagnostic with the given message and the
// invocation's source location.
func ComptimeAssert(diags *errs.Diagnostics) env.GeneratorFunc {
	return func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool {
		guardStart := start + 2
		guardEnd := guardTokenEnd(src, guardStart)

		result, ok := evalGuard(src, guardStart, guardEnd, diags)
		if !ok {
			return false
		}

		if !result {
			msg := "comptime-assert failed"
			if guardEnd < src.MatchParen(start) && src.At(guardEnd).Kind == token.String {
				msg = src.At(guardEnd).Contents
			}

			t := src.At(start)
			diags.Add(errs.Diagnostic{
				Loc: errs.Location{File: t.File, Line: t.Line, Column: t.ColStart},
				Err: errs.New(msg),
			})
		}

		return true
	}
}

// guardTokenEnd returns the index following a single guard token or
// parenthesized guard expression starting at i.
func guardTokenEnd(src *token.Array, i int) int {
	if src.At(i).Kind == token.OpenParen {
		return src.MatchParen(i) + 1
	}

	return i + 1
}

// evalGuard compiles and runs the guard expression in [lo, hi) as an
// expr-lang expression (tokens rejoined with spaces, since expr-lang parses
// infix syntax, not S-expressions) and returns (result, ok).
func evalGuard(src *token.Array, lo, hi int, diags *errs.Diagnostics) (result bool, ok bool) {
	var sb strings.Builder

	for i := lo; i < hi; i++ {
		t := src.At(i)

		switch t.Kind {
		case token.OpenParen:
			sb.WriteByte('(')
		case token.CloseParen:
			sb.WriteByte(')')
		case token.String:
			sb.WriteString(strconv.Quote(t.Contents))
		default:
			sb.WriteString(t.Contents)
			sb.WriteByte(' ')
		}
	}

	source := strings.TrimSpace(sb.String())

	program, err := expr.Compile(source, expr.Env(exprEnv()), expr.AsBool())
	if err != nil {
		diags.Add(errs.Diagnostic{
			Err: errs.New("comptime guard compile failed").With(slog.String("source", source)).Wrap(err),
		})

		return false, false
	}

	out, err := expr.Run(program, exprEnv())
	if err != nil {
		diags.Add(errs.Diagnostic{
			Err: errs.New("comptime guard evaluation failed").With(slog.String("source", source)).Wrap(err),
		})

		return false, false
	}

	b, _ := out.(bool)

	return b, true
}
