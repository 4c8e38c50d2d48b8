package cli

import (
	"context"
	"io"
	"strconv"
	"strings"

	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/cakelisp/log"
)

// resolve returns a [kong.ConfigurationLoader] that parses config files
// written in YAML.
//
// It can be used with [kong.Configuration] like this:
//
//	kong.Configuration(resolve(ctx, "cakelisp"), "/path/to/config.yml")
//
// Flag names with hyphens (e.g., "log-level") should use underscores in the
// config file (e.g., "log_level"), matching Kong's own convention for
// environment variable names. Command-line flags override config file
// values.
func resolve(ctx context.Context, name string) func(r io.Reader) (kong.Resolver, error) {
	return func(r io.Reader) (kong.Resolver, error) {
		buf, err := io.ReadAll(r)
		if err != nil {
			// No config available - return empty config so Kong falls back
			// to flag defaults instead of failing to start.
			return config{}, nil
		}

		var doc map[string]any

		if err := yaml.Unmarshal(buf, &doc); err != nil {
			log.DebugContext(ctx, "config parse failed, using defaults",
				slog.String("name", name), slog.Any("error", err))

			return config{}, nil
		}

		return config(doc), nil
	}
}

// config implements [kong.Resolver] for YAML configs.
type config map[string]any

// Validate implements [kong.Resolver].
func (r config) Validate(*kong.Application) error {
	return nil
}

// Resolve implements [kong.Resolver].
func (r config) Resolve(
	_ *kong.Context,
	_ *kong.Path,
	flag *kong.Flag,
) (any, error) {
	name := flag.Name
	underscoreName := strings.ReplaceAll(name, "-", "_")

	if value, ok := r[name]; ok {
		return stringify(value), nil
	}

	if value, ok := r[underscoreName]; ok {
		return stringify(value), nil
	}

	return nil, nil
}

// stringify converts numeric YAML scalars to strings, since Kong's flag
// parser expects string representations regardless of the underlying type.
func stringify(v any) any {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return v
	}
}
