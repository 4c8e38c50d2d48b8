package cmd

import (
	"context"
	"io"
	"path/filepath"

	"github.com/ardnew/cakelisp/internal/module"
	"github.com/ardnew/cakelisp/log"
)

// Eval translates source the same way Build does, but discards the
// generated C/C++ instead of writing it to disk, useful for checking that a
// module's references all resolve. Compile-time definitions are still
// compiled into CacheDir, as in Build.
type Eval struct {
	Source []string `arg:"" help:"Source input file(s) or '-' for stdin" name:"source"`

	CacheDir   string `default:"${cache}/cakelisp_cache" help:"Directory for intermediate compile artifacts" name:"cache-dir"`
	SourceDir  string `                                 help:"Additional include directory for compilation" name:"source-dir"`
	Compiler   string `default:"c++"                    help:"Compiler invoked to build compile-time definitions"`
	Concurrent int    `default:"8"                      help:"Maximum concurrent compile/link subprocesses"          name:"concurrency"`
	HotReload  bool   `                                 help:"Emit module state variables as dereferenced pointers"`
}

// Run executes the eval command.
func (e *Eval) Run(ctx context.Context) error {
	files, err := lexSources(e.Source)
	if err != nil {
		return NewError("lex source").Wrap(err)
	}

	cacheDir := e.CacheDir

	report := module.Translate(ctx, files, io.Discard, io.Discard, module.Options{
		CacheDir:     cacheDir,
		SourceDir:    e.SourceDir,
		Concurrency:  e.Concurrent,
		CompilerPath: e.Compiler,
		CacheDBPath:  filepath.Join(cacheDir, "cakelisp.db"),
		Eval:         moduleEvalOptions(e.HotReload),
		Logger:       log.With(),
	})

	return reportResult(ctx, report)
}
