package repl

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// builtinCandidates lists the generators and macros every module gets for
// free (module.registerBuiltins); these are always offered as completions
// regardless of what the current session has defined.
var builtinCandidates = []string{
	"defun", "return", "defmacro", "defgenerator",
	"comptime-assert", "comptime-if",
	"+", "-", "*", "/", "==", "!=", "<", ">", "<=", ">=",
}

// isWordBoundary reports whether r delimits a completable word. Cakelisp
// symbols may contain hyphens (comptime-assert, defgenerator), so only
// whitespace and parens split words.
func isWordBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '(', ')':
		return true
	}

	return false
}

// wordBounds returns the word at the cursor position in input and its byte
// boundaries, delimited by isWordBoundary.
func wordBounds(input string, cursor int) (word string, start, end int) {
	if cursor > len(input) {
		cursor = len(input)
	}

	start = cursor
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if isWordBoundary(r) {
			break
		}

		start -= size
	}

	end = cursor
	for end < len(input) {
		r, size := utf8.DecodeRuneInString(input[end:])
		if isWordBoundary(r) {
			break
		}

		end += size
	}

	return input[start:end], start, end
}

// definedNames scans every accepted line for a top-level
// (defun|defmacro|defgenerator <name> ...) form and returns the name
// introduced, in case a session wants to complete a call to something it
// just declared.
func definedNames(lines []string) []string {
	var names []string

	for _, line := range lines {
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "("))
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "defun", "defmacro", "defgenerator":
			names = append(names, fields[1])
		}
	}

	return names
}

var (
	suggestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))
)

func renderCandidate(match fuzzy.Match, selected bool) string {
	if selected {
		return selectedStyle.Render(match.Str)
	}

	return suggestStyle.Render(match.Str)
}

// renderCandidateBar renders the fuzzy match list as a single line, cutting
// off with an ellipsis if it would overflow width.
func renderCandidateBar(matches fuzzy.Matches, selected int, width int) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	var b strings.Builder

	used := 0
	ellipsis := hintStyle.Render("...")
	ellipsisWidth := lipgloss.Width(ellipsis)

	for i, match := range matches {
		rendered := renderCandidate(match, i == selected)
		entryWidth := lipgloss.Width(rendered)

		if i > 0 {
			entryWidth += lipgloss.Width(sep)
		}

		if used+entryWidth+ellipsisWidth > width && i > 0 {
			b.WriteString(sep)
			b.WriteString(ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)
		used += entryWidth
	}

	return b.String()
}
