// Package require implements requirement propagation: the transitive
// closure of isRequired from the implicit module root over ReferenceStatus
// edges (spec.md §4.3).
package require

import "github.com/ardnew/cakelisp/internal/env"

// GlobalRoot is the name of the implicit module-root definition that seeds
// propagation. Module evaluation marks GlobalRoot required; top-level
// definitions add no reference edge from it, and defun, defmacro, and
// defgenerator mark their own definitions required instead.
const GlobalRoot = "<global>"

// Result reports the outcome of one call to Propagate.
type Result struct {
	// Transitions is the number of definitions newly marked required during
	// this call.
	Transitions int
	// Omitted lists definitions not reachable from the root, in
	// unspecified order; these are emitted but flagged as omitted, per
	// spec.md §4.3 ("a note, not an error").
	Omitted []string
}

// Propagate runs requirement propagation on e to a fixed point: starting
// from GlobalRoot (already marked required by module evaluation), every
// definition named in a required definition's ReferenceStatus map is marked
// required, repeating until no further definition is newly marked
// (spec.md §8 property 3).
func Propagate(e *env.Environment) Result {
	var result Result

	for {
		progressed := false

		for _, def := range e.Definitions {
			if !def.Required {
				continue
			}

			for name := range def.References {
				target, ok := e.Lookup(name)
				if !ok || target.Required {
					continue
				}

				target.Required = true
				progressed = true
				result.Transitions++
			}
		}

		if !progressed {
			break
		}
	}

	for name, def := range e.Definitions {
		if !def.Required {
			result.Omitted = append(result.Omitted, name)
		}
	}

	return result
}
