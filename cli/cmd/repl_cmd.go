package cmd

import (
	"context"

	"github.com/ardnew/cakelisp/cli/cmd/repl"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

// Repl opens an interactive dashboard that re-runs the fixed-point
// translation loop after every line entered, optionally seeded with source
// already on disk.
type Repl struct {
	Source []string `arg:"" help:"Source input file(s) to seed the session" name:"source" optional:""`

	CacheDir string `default:"${cache}/cakelisp_cache" help:"Directory for intermediate compile artifacts" name:"cache-dir"`
}

func (r *Repl) Run(ctx context.Context) error {
	var seed []*token.Array

	if len(r.Source) > 0 {
		files, err := lexSources(r.Source)
		if err != nil {
			return NewError("lex source").Wrap(err)
		}

		seed = files
	}

	return repl.Run(ctx, seed, r.CacheDir, log.With())
}
