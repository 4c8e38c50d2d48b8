// Package eval implements the recursive evaluator and invocation dispatcher
// described in spec.md §4.1-§4.2: it walks tokens, emits literals and
// symbols directly, hands invocations to the dispatcher, and flattens
// macro-expanded bodies back into the surrounding evaluation.
package eval

import (
	"log/slog"
	"strings"

	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

// FunctionInvoker emits an invocation of a known, non-compile-time function
// into out (the built-in function-invocation generator, spec.md §4.2 step 3
// and §4.4 readiness-check's "run the function-invocation generator").
type FunctionInvoker func(e *env.Environment, ctx env.Context, src *token.Array, start int, out *output.Buffer) bool

// Evaluator walks token arrays and emits Output fragments, dispatching
// invocations to macros, generators, known functions, or deferred
// references.
type Evaluator struct {
	Env     *env.Environment
	Opts    Options
	Diags   *errs.Diagnostics
	Invoker FunctionInvoker
	log     log.Logger
}

// New constructs an Evaluator against env, collecting diagnostics into
// diags. invoker backs dispatch step 3 (known runtime functions) and the
// re-emission paths in steps 1/4.
func New(e *env.Environment, opts Options, diags *errs.Diagnostics, invoker FunctionInvoker, logger log.Logger) *Evaluator {
	if logger.Logger == nil {
		logger = log.With()
	}

	return &Evaluator{Env: e, Opts: opts, Diags: diags, Invoker: invoker, log: logger}
}

// EvaluateGenerateAll evaluates the token range [lo, hi) against src,
// writing fragments to out. If delim is non-nil, a copy of it is appended
// between sibling forms (but not before the first or after the last).
func (v *Evaluator) EvaluateGenerateAll(ctx env.Context, src *token.Array, lo, hi int, delim *output.Fragment, out *output.Buffer) {
	i := lo
	first := true

	for i < hi {
		if src.At(i).Kind == token.CloseParen {
			return
		}

		if !first && delim != nil {
			out.Source.Append(*delim)
		}

		first = false
		i = v.EvaluateGenerate(ctx, src, i, out)
	}
}

// EvaluateGenerate evaluates the single token at index i against src,
// writing fragments to out, and returns the index to resume at.
func (v *Evaluator) EvaluateGenerate(ctx env.Context, src *token.Array, i int, out *output.Buffer) int {
	t := src.At(i)

	switch t.Kind {
	case token.OpenParen:
		v.dispatch(ctx, src, i, out)

		return src.MatchParen(i) + 1

	case token.CloseParen:
		// End of enclosing body; the caller (EvaluateGenerateAll) checks
		// for this before calling EvaluateGenerate, so reaching this case
		// directly is a no-op advance.
		return i + 1

	case token.Symbol:
		if ctx.Scope != env.ExpressionsOnly {
			v.scopeError(t)

			return i + 1
		}

		v.emitSymbol(ctx, src, i, out)

		return i + 1

	case token.String:
		if ctx.Scope != env.ExpressionsOnly {
			v.scopeError(t)

			return i + 1
		}

		out.Source.Append(output.Fragment{
			Payload:   t.Contents,
			Modifiers: output.SurroundWithQuotes,
			Origin:    token.Ref{Array: src, Index: i},
		})

		return i + 1

	default:
		v.Diags.Add(errs.Diagnostic{
			Loc: errs.Location{File: t.File, Line: t.Line, Column: t.ColStart},
			Err: errs.New("internal error: invalid token kind in evaluator"),
		})

		return i + 1
	}
}

func (v *Evaluator) scopeError(t token.Token) {
	v.Diags.Add(errs.Diagnostic{
		Loc: errs.Location{File: t.File, Line: t.Line, Column: t.ColStart},
		Err: errs.ErrInvalidScope.With(slog.String("contents", t.Contents)),
	})
}

// emitSymbol emits a bare symbol: literals are emitted verbatim, other
// identifiers are emitted with ConvertVariableName, optionally wrapped in a
// pointer dereference when hot-reload names a module state variable.
func (v *Evaluator) emitSymbol(ctx env.Context, src *token.Array, i int, out *output.Buffer) {
	t := src.At(i)
	origin := token.Ref{Array: src, Index: i}

	if t.IsLiteral() {
		out.Source.Append(output.Fragment{Payload: t.Contents, Origin: origin})

		return
	}

	payload := t.Contents
	if v.Opts.IsModuleStateVar(payload) {
		payload = "(*" + payload + ")"
	}

	out.Source.Append(output.Fragment{
		Payload:   payload,
		Modifiers: output.ConvertVariableName,
		Origin:    origin,
	})
}

// dispatch resolves the invocation headed by the symbol at i+1, per
// spec.md §4.2's four-step resolution order.
func (v *Evaluator) dispatch(ctx env.Context, src *token.Array, i int, out *output.Buffer) {
	head := src.At(i + 1)
	name := head.Contents
	origin := token.Ref{Array: src, Index: i}

	// 1. Macro.
	if macro, ok := v.Env.Macros[name]; ok {
		v.dispatchMacro(ctx, src, i, out, macro, name)

		return
	}

	// 2. Generator.
	if gen, ok := v.Env.Generators[name]; ok {
		if !gen(v.Env, ctx, src, i, out) {
			v.Diags.Add(errs.Diagnostic{
				Loc: v.loc(head),
				Err: errs.ErrMacroFailed.With(slog.String("generator", name)),
			})
		}

		return
	}

	// 3. Known non-compile-time definition.
	if def, ok := v.Env.Lookup(name); ok && def.Kind == env.Function {
		if v.Invoker != nil {
			v.Invoker(v.Env, ctx, src, i, out)
		}

		return
	}

	// 4. Unknown: defer as a reference.
	v.deferReference(ctx, src, i, out, name, origin)
}

func (v *Evaluator) dispatchMacro(ctx env.Context, src *token.Array, i int, out *output.Buffer, macro env.MacroFunc, name string) {
	var expansion []token.Token

	ok := macro(v.Env, ctx, src, i, &expansion)
	if !ok {
		v.Diags.Add(errs.Diagnostic{
			Loc:  v.loc(src.At(i)),
			Err:  errs.ErrMacroFailed.With(slog.String("macro", name)),
			Dump: dumpTokens(expansion),
		})

		return
	}

	if len(expansion) == 0 {
		return
	}

	if !token.Balanced(expansion) {
		v.Diags.Add(errs.Diagnostic{
			Loc:  v.loc(src.At(i)),
			Err:  errs.ErrMacroFailed.With(slog.String("macro", name), slog.String("reason", "unbalanced parens")),
			Dump: dumpTokens(expansion),
		})

		return
	}

	arr := token.New(expansion).Freeze()
	v.Env.AdoptExpansion(arr)

	if v.Opts.Trace {
		v.log.Trace("macro expanded", slog.String("macro", name), slog.String("expansion", dumpTokens(expansion)))
	}

	// Macros inherit the current context, unlike bodies which introduce a
	// fresh scope; this lets a macro used at module scope produce further
	// definitions.
	v.EvaluateGenerateAll(ctx, arr, 0, arr.Len(), nil, out)
}

func (v *Evaluator) deferReference(ctx env.Context, src *token.Array, i int, out *output.Buffer, name string, origin token.Ref) {
	splice := out.Splice(origin)

	ref := &env.ObjectReference{
		Source: src,
		Start:  i,
		Ctx:    ctx,
		Splice: splice,
	}

	v.Env.PoolFor(name).Add(name, ref)

	def, ok := v.Env.Lookup(ctx.Definition)
	if !ok {
		v.Diags.Add(errs.Diagnostic{
			Loc: v.loc(src.At(i)),
			Err: errs.ErrInternalInconsistency.With(slog.String("definition", ctx.Definition)),
		})

		return
	}

	status := def.StatusFor(name)
	if len(status.Sites) == 0 {
		status.Name = origin
	}

	status.AddSite(ref)

	// If a previous pass already speculated this symbol as a plain function
	// call, immediately re-run the function-invocation generator so the new
	// site matches the prior guess rather than sitting empty until the next
	// build pass.
	if status.State == env.Guessed && v.Invoker != nil {
		v.Invoker(v.Env, ctx, src, i, splice)
	}
}

func (v *Evaluator) loc(t token.Token) errs.Location {
	return errs.Location{File: t.File, Line: t.Line, Column: t.ColStart}
}

func dumpTokens(toks []token.Token) string {
	var sb strings.Builder

	for _, t := range toks {
		switch t.Kind {
		case token.OpenParen:
			sb.WriteString("(")
		case token.CloseParen:
			sb.WriteString(")")
		case token.String:
			sb.WriteString(`"` + t.Contents + `" `)
		default:
			sb.WriteString(t.Contents + " ")
		}
	}

	return sb.String()
}
