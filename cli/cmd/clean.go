package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ardnew/cakelisp/log"
)

// Clean removes the build cache directory, forcing every compile-time
// definition to rebuild on the next run.
type Clean struct {
	CacheDir string `default:"${cache}/cakelisp_cache" help:"Directory for intermediate compile artifacts" name:"cache-dir"`
}

// Run executes the clean command.
func (c *Clean) Run(ctx context.Context) error {
	cacheDir := c.CacheDir

	if err := os.RemoveAll(cacheDir); err != nil {
		return NewError("remove cache directory").With(slog.String("path", cacheDir)).Wrap(err)
	}

	log.InfoContext(ctx, "cache directory removed", slog.String("path", cacheDir))

	return nil
}
