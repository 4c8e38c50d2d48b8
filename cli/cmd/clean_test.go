package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanRunRemovesCacheDirectory(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")

	if err := os.MkdirAll(filepath.Join(cacheDir, "stale"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := &Clean{CacheDir: cacheDir}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Clean.Run() error = %v", err)
	}

	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Errorf("expected cache directory %s to be removed, stat err = %v", cacheDir, err)
	}
}

func TestCleanRunToleratesMissingCacheDirectory(t *testing.T) {
	c := &Clean{CacheDir: filepath.Join(t.TempDir(), "never-created")}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Clean.Run() on a missing directory should not error, got %v", err)
	}
}
