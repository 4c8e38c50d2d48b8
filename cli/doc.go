// Package cli contains the command line interface for cakelisp.
//
// # Usage
//
// The CLI provides the build, eval, clean, and repl subcommands; build runs
// when no subcommand is named. Logging and profiling flags apply to every
// subcommand:
//
//	cakelisp --log-level=debug build main.cake
//
// # Configuration Loader
//
// Flag values may also come from a YAML file named "config" in the user
// configuration directory ([resolve]), or from a JSON file of the same name
// with a ".json" extension. Command-line flags override file values.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (debug, info, warn, error)
//   - --log-format: Set log output format (json, text)
//   - --log-time-layout: Set timestamp format (RFC3339, RFC3339Nano, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorized pretty printing (enabled by default;
//     disable with --no-log-pretty)
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof -o cakelisp .
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory (default: a "pprof"
//     directory inside the user cache directory, e.g. ~/.cache/cakelisp/pprof)
//
// # Examples
//
//	# Debug logging with CPU profiling
//	cakelisp --log-level=debug --pprof-mode=cpu main.cake
//
//	# Text format with heap profiling
//	cakelisp --log-format=text --pprof-mode=heap main.cake
//
//	# Custom profile directory
//	cakelisp --pprof-mode=allocs --pprof-dir=/tmp/profiles main.cake
package cli
