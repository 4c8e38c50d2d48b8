// Package procrun spawns and reaps the compiler and linker subprocesses the
// build driver invokes, with a concurrency cap enforced across one wave
// (spec.md §4.4 "Concurrency policy").
package procrun

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/mung"
)

// Result captures the outcome of one subprocess invocation.
type Result struct {
	Status int
	Stdout string
	Stderr string
	Err    error // spawn error, distinct from a non-zero exit status
}

// Command describes one subprocess invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// IncludeDirs are appended to a PATH-style environment variable named
	// Env (e.g. "CPATH") via mung, ahead of any inherited value, so the
	// compiler finds headers the driver writes alongside generated sources.
	IncludeDirs []string
	Env         string
}

// Run executes one command synchronously and returns its Result. A non-zero
// exit code is reported via Status, not Err; Err is reserved for spawn
// failures (executable not found, permission denied).
func Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	if cmd.Env != "" && len(cmd.IncludeDirs) > 0 {
		c.Env = append(os.Environ(), cmd.Env+"="+mung.Make(
			mung.WithSubjectItems(os.Getenv(cmd.Env)),
			mung.WithDelim(string(os.PathListSeparator)),
			mung.WithPrefixItems(cmd.IncludeDirs...),
		).String())
	}

	var stdout, stderr bytes.Buffer

	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err == nil {
		result.Status = 0

		return result
	}

	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ProcessState != nil {
		result.Status = exitErr.ProcessState.ExitCode()

		return result
	}

	result.Err = err
	result.Status = -1

	return result
}

// Wave runs every command in cmds concurrently, capped at n simultaneous
// children (spec.md §8 property 8), and waits for the entire wave to close
// before returning. Results are returned in the same order as cmds.
func Wave(ctx context.Context, n int, cmds []Command) []Result {
	results := make([]Result, len(cmds))

	var group errgroup.Group

	group.SetLimit(n)

	for i, cmd := range cmds {
		group.Go(func() error {
			results[i] = Run(ctx, cmd)

			return nil
		})
	}

	_ = group.Wait()

	return results
}
