// Package module implements the top-level translation entry point: it
// evaluates a module's top-level forms, drives the fixed-point loop over
// requirement propagation and the build driver described in spec.md §4.5,
// validates the final state, writes the aggregated output, and tears down
// the environment.
package module

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ardnew/cakelisp/internal/build"
	"github.com/ardnew/cakelisp/internal/builtin"
	"github.com/ardnew/cakelisp/internal/cachedb"
	"github.com/ardnew/cakelisp/internal/env"
	"github.com/ardnew/cakelisp/internal/errs"
	"github.com/ardnew/cakelisp/internal/eval"
	"github.com/ardnew/cakelisp/internal/require"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/internal/writer"
	"github.com/ardnew/cakelisp/log"
)

// MaxIterations bounds the fixed-point loop described in spec.md §4.5. The
// spec leaves the termination bound for a guess that keeps growing forever
// as an open question; DESIGN.md resolves it by capping at MaxIterations
// outer iterations, generous for any terminating program and cheap to hit
// for a runaway one.
const MaxIterations = 64

// arithmeticOperators lists the binary infix generators registered as
// built-ins alongside defun/return (spec.md §4's "a handful of built-in
// generators" is left open-ended; these cover the arithmetic expressions
// the scenarios in spec.md §8 exercise).
var arithmeticOperators = []string{"+", "-", "*", "/", "==", "!=", "<", ">", "<=", ">="}

// Options configures one Translate call.
type Options struct {
	Eval        eval.Options
	CacheDir    string
	SourceDir   string
	Concurrency int
	// CompilerPath, if set, overrides the build driver's default "c++"
	// compiler invocation for compile-time definitions.
	CompilerPath string
	// CacheDBPath, if set, opens a persistent freshness index at this path
	// so an unchanged definition skips rebuilding even after CacheDir is
	// wiped (internal/cachedb).
	CacheDBPath string
	Logger      log.Logger
}

// Report is the outcome of translating one module to completion.
type Report struct {
	Iterations int
	Diags      *errs.Diagnostics
	// Omitted lists definitions never reached from the module root: emitted
	// but flagged as a note, not an error (spec.md §4.3).
	Omitted []string
}

// OK reports whether translation completed with no unresolved references
// and every required compile-time definition loaded.
func (r Report) OK() bool {
	return r.Diags.OK()
}

// Translate evaluates every file's top-level forms against a fresh
// Environment, drives the fixed-point loop to quiescence, validates the
// final state, writes the module's aggregated source and header output to
// src and hdr, and tears down the environment before returning.
func Translate(ctx context.Context, files []*token.Array, src, hdr io.Writer, opts Options) Report {
	logger := opts.Logger
	if logger.Logger == nil {
		logger = log.With()
	}

	e := env.New(logger)
	diags := &errs.Diagnostics{}

	v := eval.New(e, opts.Eval, diags, nil, logger)
	v.Invoker = builtin.NewFunctionInvoker(v)

	registerBuiltins(e, v, diags)

	root, _ := e.Define(rootRef(), env.Function)
	root.Required = true

	rootCtx := env.Context{Scope: env.Module, Definition: require.GlobalRoot, Env: e}

	driver := build.New(e, v, opts.CacheDir, opts.SourceDir, logger)
	if opts.Concurrency > 0 {
		driver.Concurrency = opts.Concurrency
	}

	if opts.CompilerPath != "" {
		driver.CompilerPath = opts.CompilerPath
	}

	if opts.CacheDBPath != "" {
		if cache, err := cachedb.Open(opts.CacheDBPath); err != nil {
			logger.Warn("cachedb: open failed, freshness index disabled", slog.String("path", opts.CacheDBPath), slog.String("error", err.Error()))
		} else {
			driver.Cache = cache
			defer cache.Close()
		}
	}

	report := Report{Diags: diags}

	attempt := func() {
		report.Iterations++

		propagation := require.Propagate(e)
		buildResult := driver.Run(ctx)

		for _, obj := range buildResult.Objects {
			if obj.Err != nil {
				diags.Add(errs.Diagnostic{
					Err: errs.ErrBuildFailed.With(slog.String("definition", obj.Name)).Wrap(obj.Err),
				})
			}
		}

		report.Omitted = propagation.Omitted
	}

	// Evaluate one top-level form at a time, attempting a readiness/build
	// pass after each, rather than evaluating the whole module upfront. A
	// call site that textually precedes its defmacro/defgenerator form must
	// see that name as genuinely undefined the first time readinessCheck
	// runs (spec.md scenario S3, "use before macro" -> Guessed on iteration
	// 1); evaluating every file first would already have registered the
	// Definition by then, collapsing S3 into S2's known-reference case.
eval:
	for _, arr := range files {
		i := 0

		for i < arr.Len() {
			if arr.At(i).Kind == token.CloseParen {
				break
			}

			i = v.EvaluateGenerate(rootCtx, arr, i, root.Output)
			attempt()

			if !diags.OK() {
				break eval
			}
		}
	}

	if diags.OK() {
		for iter := 1; iter <= MaxIterations; iter++ {
			propagation := require.Propagate(e)
			buildResult := driver.Run(ctx)

			report.Iterations++

			for _, obj := range buildResult.Objects {
				if obj.Err != nil {
					diags.Add(errs.Diagnostic{
						Err: errs.ErrBuildFailed.With(slog.String("definition", obj.Name)).Wrap(obj.Err),
					})
				}
			}

			if !diags.OK() {
				break
			}

			report.Omitted = propagation.Omitted

			if buildResult.RelevantChanges == 0 && buildResult.Queued == 0 && propagation.Transitions == 0 {
				break
			}
		}
	}

	validate(e, diags)

	if src != nil && hdr != nil {
		writeOutput(src, hdr, e, diags)
	}

	e.Teardown()

	return report
}

// registerBuiltins wires the small set of built-in generators and macros
// every module gets for free, regardless of what compile-time definitions
// it loads later (spec.md §1: the core dispatches to these, but does not
// own their code-emission contents).
func registerBuiltins(e *env.Environment, v *eval.Evaluator, diags *errs.Diagnostics) {
	e.Generators["defun"] = builtin.Defun(v)
	e.Generators["return"] = builtin.Return(v)

	for _, op := range arithmeticOperators {
		e.Generators[op] = builtin.BinaryOp(v, op)
	}

	e.Generators["comptime-assert"] = builtin.ComptimeAssert(diags)
	e.Macros["comptime-if"] = builtin.ComptimeIf(diags)

	e.Generators["defmacro"] = builtin.DefCompileTime(env.CompileTimeMacro, diags)
	e.Generators["defgenerator"] = builtin.DefCompileTime(env.CompileTimeGenerator, diags)
}

// validate implements spec.md §4.5's final report: every required
// compile-time definition must be loaded, and every required
// non-compile-time definition's references must have left state None.
func validate(e *env.Environment, diags *errs.Diagnostics) {
	for name, def := range e.Definitions {
		if !def.Required {
			continue
		}

		if def.Kind.IsCompileTime() && !def.Loaded {
			diags.Add(errs.Diagnostic{
				Loc: location(def.Name.Token()),
				Err: errs.ErrBuildFailed.With(slog.String("definition", name), slog.String("reason", "never loaded")),
			})

			continue
		}

		for refName, status := range def.References {
			if status.State == env.None {
				diags.Add(errs.Diagnostic{
					Loc: location(status.Name.Token()),
					Err: errs.ErrUnknownInvocation.With(slog.String("name", refName), slog.String("in", name)),
				})
			}
		}
	}
}

// writeOutput serializes every non-compile-time definition's Output in
// module source order (spec.md §6 "one generated source file and one
// header file per module").
func writeOutput(src, hdr io.Writer, e *env.Environment, diags *errs.Diagnostics) {
	for _, name := range e.Order {
		if name == require.GlobalRoot {
			continue
		}

		def, ok := e.Definitions[name]
		if !ok || def.Kind.IsCompileTime() {
			continue
		}

		if err := writer.WriteStream(src, &def.Output.Source); err != nil {
			diags.Add(errs.Diagnostic{Err: fmt.Errorf("module: write source for %s: %w", name, err)})
		}

		if err := writer.WriteStream(hdr, &def.Output.Header); err != nil {
			diags.Add(errs.Diagnostic{Err: fmt.Errorf("module: write header for %s: %w", name, err)})
		}
	}
}

func location(t token.Token) errs.Location {
	return errs.Location{File: t.File, Line: t.Line, Column: t.ColStart}
}

func rootRef() token.Ref {
	arr := token.New([]token.Token{{Kind: token.Symbol, Contents: require.GlobalRoot}}).Freeze()

	return token.Ref{Array: arr, Index: 0}
}
