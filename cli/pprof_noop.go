//go:build !pprof

package cli

import (
	"context"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/ardnew/cakelisp/profile"
)

// pprofConfig is a no-op stand-in used when built without the pprof build
// tag (profile.Tag).
type pprofConfig struct {
	Mode string `default:""            help:"Enable profiling"         placeholder:"${enum}" short:"p"`
	Dir  string `default:"${pprofDir}"                                 help:"Profile output directory"                                 type:"path"`
}

func (pprofConfig) vars() kong.Vars {
	return kong.Vars{
		"pprofDir": filepath.Join(cacheDir(), profile.Tag),
	}
}

func (pprofConfig) group() kong.Group {
	var group kong.Group

	group.Key = "pprof"
	group.Title = "Profiling (pprof)"

	return group
}

// start is a no-op unless built with tag pprof.
func (pprofConfig) start(ctx context.Context) (stop func()) {
	return func() {}
}
