package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ardnew/cakelisp/internal/lexer"
	"github.com/ardnew/cakelisp/internal/module"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
	"github.com/ardnew/cakelisp/pkg"
)

// Build translates one or more cakelisp source files into a single C/C++
// source and header pair.
type Build struct {
	Source []string `arg:"" help:"Source input file(s) or '-' for stdin" name:"source"`

	Out        string `default:"cakelisp_out.cpp"       help:"Generated source output path"                 short:"o"`
	OutHeader  string `                                 help:"Generated header output path (defaults to Out with a .h extension)"`
	CacheDir   string `default:"${cache}/cakelisp_cache" help:"Directory for intermediate compile artifacts" name:"cache-dir"`
	SourceDir  string `                                 help:"Additional include directory for compilation" name:"source-dir"`
	Compiler   string `default:"c++"                    help:"Compiler invoked to build compile-time definitions"`
	Concurrent int    `default:"8"                      help:"Maximum concurrent compile/link subprocesses"  name:"concurrency"`
	HotReload  bool   `                                 help:"Emit module state variables as dereferenced pointers"`
}

// Run executes the build command.
func (b *Build) Run(ctx context.Context) error {
	files, err := lexSources(b.Source)
	if err != nil {
		return NewError("lex source").Wrap(err)
	}

	cacheDir := b.CacheDir

	outHeader := b.OutHeader
	if outHeader == "" {
		ext := filepath.Ext(b.Out)
		outHeader = b.Out[:len(b.Out)-len(ext)] + ".h"
	}

	src, err := os.Create(b.Out)
	if err != nil {
		return NewError("create output source").Wrap(err)
	}
	defer src.Close()

	hdr, err := os.Create(outHeader)
	if err != nil {
		return NewError("create output header").Wrap(err)
	}
	defer hdr.Close()

	report := module.Translate(ctx, files, src, hdr, module.Options{
		CacheDir:     cacheDir,
		SourceDir:    b.SourceDir,
		Concurrency:  b.Concurrent,
		CompilerPath: b.Compiler,
		CacheDBPath:  filepath.Join(cacheDir, "cakelisp.db"),
		Eval:         moduleEvalOptions(b.HotReload),
		Logger:       log.With(),
	})

	return reportResult(ctx, report)
}

// lexSources lexes every named source (or stdin for "-") into its own
// token.Array, attributing diagnostics to the right file name. Sources
// naming the same underlying file, whether by a different path, a
// symlink, or by repeating "-", are only lexed once.
func lexSources(sources []string) ([]*token.Array, error) {
	if len(sources) == 0 {
		return nil, pkg.ErrNoSource
	}

	sources = dedupSources(sources)
	files := make([]*token.Array, 0, len(sources))

	for _, path := range sources {
		var (
			r    io.Reader
			name string
		)

		if path == "-" {
			r, name = os.Stdin, "<stdin>"
		} else {
			f, err := os.Open(path)
			if err != nil {
				return nil, pkg.MakeError(pkg.ErrReadInput, fmt.Errorf("open %s: %w", path, err))
			}
			defer f.Close()

			r, name = f, path
		}

		arr, err := lexer.New(name, r).Lex()
		if err != nil {
			return nil, fmt.Errorf("lex %s: %w", name, err)
		}

		files = append(files, arr)
	}

	return files, nil
}

// reportResult prints a translation report's diagnostics and returns an
// error if the run did not complete cleanly.
func reportResult(ctx context.Context, report module.Report) error {
	for _, name := range report.Omitted {
		log.DebugContext(ctx, "definition omitted (not reachable from module root)", slog.String("name", name))
	}

	if report.OK() {
		log.InfoContext(ctx, "translation complete", slog.Int("iterations", report.Iterations))

		return nil
	}

	for _, diag := range report.Diags.Items() {
		fmt.Fprint(os.Stderr, diag.String())
	}

	return NewError("translation failed").
		Wrap(pkg.ErrTranslationFailed).
		With(slog.Int("diagnostics", report.Diags.Count()))
}
