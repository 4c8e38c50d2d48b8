package cmd

import (
	"github.com/ardnew/cakelisp/internal/eval"
)

// moduleEvalOptions builds the evaluator options shared by build and eval.
func moduleEvalOptions(hotReload bool) eval.Options {
	return eval.Options{HotReload: hotReload}
}
