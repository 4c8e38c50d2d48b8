package errs

import (
	"fmt"
	"strings"
)

// Location identifies a source position for diagnostic rendering.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Note is an additional source location cited by a Diagnostic, rendered as
// a "note:" line beneath the primary message.
type Note struct {
	Loc Location
	Msg string
}

// Diagnostic is a single error or note produced during one evaluation pass,
// rendered as `<file>:<line>: error: <message>` per spec.md §7.
type Diagnostic struct {
	Loc     Location
	Err     error
	Notes   []Note
	Dump    string // pretty-printed expansion dump, for macro failures
}

func (d Diagnostic) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s: error: %s\n", d.Loc, d.Err)

	for _, n := range d.Notes {
		fmt.Fprintf(&sb, "%s: note: %s\n", n.Loc, n.Msg)
	}

	if d.Dump != "" {
		sb.WriteString(d.Dump)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// Diagnostics accumulates every error produced during one evaluation pass,
// so that a single run surfaces as many problems as possible instead of
// stopping at the first (spec.md §7's "continue past errors" posture).
type Diagnostics struct {
	items []Diagnostic
}

// Add records a diagnostic.
func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

// Errorf records a diagnostic built from a location and formatted message.
func (d *Diagnostics) Errorf(loc Location, format string, args ...any) {
	d.Add(Diagnostic{Loc: loc, Err: fmt.Errorf(format, args...)})
}

// Count returns the number of diagnostics recorded so far.
func (d *Diagnostics) Count() int {
	return len(d.items)
}

// Items returns the recorded diagnostics in the order they were added.
func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

// OK reports whether no diagnostics were recorded.
func (d *Diagnostics) OK() bool {
	return len(d.items) == 0
}

// String renders all diagnostics, one per line (plus their notes/dumps), in
// the order recorded.
func (d *Diagnostics) String() string {
	var sb strings.Builder

	for _, item := range d.items {
		sb.WriteString(item.String())
	}

	return sb.String()
}
