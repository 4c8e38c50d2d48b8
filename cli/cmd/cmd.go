package cmd

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
)

// contextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// dedupSources resolves each source path to its canonical device/inode
// identity and drops any path that resolves to one already seen, so that
// the same file named twice (via a relative path, an absolute path, or a
// symlink) is only lexed once. Only the first occurrence of stdinSource (or
// of a path naming the same file as stdin) is kept, at its original
// position, since lexSources only ever needs to read os.Stdin once
// regardless of how many times "-" appears.
//
// Unlike the combined-reader helpers this replaces, dedupSources preserves
// one entry per distinct source instead of merging them into a single
// concatenated stream: cakelisp attributes every diagnostic to the file
// it came from (token.Token.File), so each source must still be lexed on
// its own.
func dedupSources(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}

	seen := make(map[fileKey]struct{})

	stdinInfo, _ := os.Stdin.Stat()
	stdinKey, hasStdinKey := makeFileKey(stdinInfo)

	deduped := make([]string, 0, len(sources))
	sawStdin := false

	for _, src := range sources {
		if src == stdinSource {
			if sawStdin {
				continue
			}

			sawStdin = true
			deduped = append(deduped, src)

			continue
		}

		key, ok := fileKeyOf(src)
		if !ok {
			deduped = append(deduped, src)

			continue
		}

		if hasStdinKey && key == stdinKey {
			if sawStdin {
				continue
			}

			sawStdin = true
			deduped = append(deduped, src)

			continue
		}

		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		deduped = append(deduped, src)
	}

	return deduped
}

// fileKeyOf resolves path to an absolute, symlink-free location and returns
// the device/inode pair identifying it. The second result is false if path
// cannot be resolved or stat'd, in which case the caller should fall back to
// treating the path as unique.
func fileKeyOf(path string) (fileKey, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fileKey{}, false
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return fileKey{}, false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fileKey{}, false
	}

	return makeFileKey(info)
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	if info == nil {
		return key, false
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: stat.Dev, ino: stat.Ino}, true
}
