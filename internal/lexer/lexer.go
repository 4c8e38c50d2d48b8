// Package lexer tokenizes cakelisp source text into an immutable
// [token.Array]. The grammar is simple enough for a hand-written
// rune-by-rune reader: whitespace-separated S-expressions with "(" / ")"
// grouping, double-quoted strings, and symbols that may contain punctuation
// such as "-", "/", "*", "<", ">".
package lexer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ardnew/cakelisp/internal/token"
)

// Lexer reads runes from an io.Reader and accumulates tokens.
type Lexer struct {
	file string
	r    *bufio.Reader
	line int
	col  int
}

// New constructs a Lexer that attributes every token it produces to file
// (used in diagnostics).
func New(file string, r io.Reader) *Lexer {
	return &Lexer{file: file, r: bufio.NewReader(r), line: 1, col: 1}
}

// Lex reads the entire input and returns a frozen [token.Array], or an error
// if the input contains unbalanced parentheses or an unterminated string.
func (l *Lexer) Lex() (*token.Array, error) {
	var toks []token.Token

	depth := 0

	for {
		r, _, err := l.r.ReadRune()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("lexer: read %s: %w", l.file, err)
		}

		switch {
		case r == '\n':
			l.line++
			l.col = 1

		case isSpace(r):
			l.col++

		case r == '(':
			toks = append(toks, l.tok(token.OpenParen, "(", 1))
			depth++
			l.col++

		case r == ')':
			toks = append(toks, l.tok(token.CloseParen, ")", 1))
			depth--

			if depth < 0 {
				return nil, fmt.Errorf("lexer: %s:%d: unbalanced close paren", l.file, l.line)
			}

			l.col++

		case r == '"':
			s, width, err := l.readString()
			if err != nil {
				return nil, err
			}

			toks = append(toks, l.tok(token.String, s, width))

		case r == ';':
			if err := l.skipLineComment(); err != nil && err != io.EOF {
				return nil, err
			}

		default:
			sym, width := l.readSymbol(r)
			toks = append(toks, l.tok(token.Symbol, sym, width))
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("lexer: %s: unbalanced open paren", l.file)
	}

	return token.New(toks).Freeze(), nil
}

func (l *Lexer) tok(kind token.Kind, contents string, width int) token.Token {
	t := token.Token{
		Kind:     kind,
		Contents: contents,
		File:     l.file,
		Line:     l.line,
		ColStart: l.col,
		ColEnd:   l.col + width,
	}
	l.col += width

	return t
}

// readString consumes the remainder of a double-quoted string literal
// (the opening quote has already been consumed). Backslash escapes the next
// rune verbatim; the returned contents do not include the surrounding
// quotes.
func (l *Lexer) readString() (string, int, error) {
	var sb strings.Builder

	width := 1 // opening quote

	for {
		r, _, err := l.r.ReadRune()
		if err != nil {
			return "", width, fmt.Errorf("lexer: %s:%d: unterminated string: %w", l.file, l.line, err)
		}

		width++

		if r == '\\' {
			esc, _, err := l.r.ReadRune()
			if err != nil {
				return "", width, fmt.Errorf("lexer: %s:%d: unterminated escape: %w", l.file, l.line, err)
			}

			width++
			sb.WriteRune(esc)

			continue
		}

		if r == '"' {
			return sb.String(), width, nil
		}

		if r == '\n' {
			l.line++
		}

		sb.WriteRune(r)
	}
}

// readSymbol consumes a run of non-space, non-paren, non-quote, non-comment
// characters starting with first (already consumed from the reader).
func (l *Lexer) readSymbol(first rune) (string, int) {
	var sb strings.Builder

	sb.WriteRune(first)

	for {
		r, _, err := l.r.ReadRune()
		if err != nil {
			break
		}

		if isSpace(r) || r == '(' || r == ')' || r == '"' || r == ';' {
			_ = l.r.UnreadRune()

			break
		}

		sb.WriteRune(r)
	}

	s := sb.String()

	return s, len([]rune(s))
}

// skipLineComment discards runes up to and including the next newline.
func (l *Lexer) skipLineComment() error {
	for {
		r, _, err := l.r.ReadRune()
		if err != nil {
			return err
		}

		if r == '\n' {
			l.line++
			l.col = 1

			return nil
		}
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
