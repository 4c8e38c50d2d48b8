// Package namestyle converts cakelisp's hyphenated source identifiers to the
// identifier styles the target C/C++ compiler and the dynamic loader expect.
package namestyle

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// ToC converts a hyphenated lisp-style identifier (e.g. "make-widget") to a
// valid C identifier by replacing hyphens with underscores. This is the
// style used for build artifact base names (spec.md §4.4 stage 1: "convert
// the lisp-style name to C style").
func ToC(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// ToSymbol converts a hyphenated identifier to the exported entry-point
// symbol name resolved by the dynamic loader after a compile-time
// definition's shared library is loaded (spec.md §4.4 stage 4: "the name
// converted per the target name-style rules"). Entry points are emitted in
// snake_case with a "cakelisp_" prefix to avoid collisions with
// user-defined C symbols of the same base name.
func ToSymbol(name string) string {
	return "cakelisp_" + strcase.ToSnake(ToC(name))
}

// ToVariable converts a hyphenated source identifier to the camelCase form
// used when emitting references to it as a C++ variable or function
// parameter (spec.md §4.1's ConvertVariableName modifier).
func ToVariable(name string) string {
	return strcase.ToLowerCamel(ToC(name))
}
