// Package writer serializes Output fragments to text, honoring formatting
// modifiers and expanding splice sentinels in place (spec.md §6 "Output").
//
// Though spec.md treats the writer as an out-of-scope external collaborator,
// SPEC_FULL.md names it as a concrete package so the evaluator core has
// something real to hand finished Output buffers to.
package writer

import (
	"bufio"
	"io"
	"strings"

	"github.com/ardnew/cakelisp/internal/namestyle"
	"github.com/ardnew/cakelisp/internal/output"
)

// WriteStream serializes one Stream's fragments to w, expanding any
// splice-sentinel fragments by recursing into their child Buffer's own
// source stream. Because each sentinel was installed at its site
// immediately when the reference was first discovered, expanding it here
// never reorders fragments already written before or after it
// (spec.md §8 property 2).
func WriteStream(w io.Writer, s *output.Stream) error {
	bw := bufio.NewWriter(w)

	if err := writeStream(bw, s); err != nil {
		return err
	}

	return bw.Flush()
}

func writeStream(bw *bufio.Writer, s *output.Stream) error {
	for _, frag := range s.Fragments() {
		if frag.Modifiers.Has(output.SpliceSentinel) {
			if frag.Splice == nil {
				continue
			}

			if err := writeStream(bw, &frag.Splice.Source); err != nil {
				return err
			}

			continue
		}

		if err := writeFragment(bw, frag); err != nil {
			return err
		}
	}

	return nil
}

func writeFragment(bw *bufio.Writer, frag output.Fragment) error {
	payload := frag.Payload

	if frag.Modifiers.Has(output.ConvertVariableName) {
		payload = namestyle.ToVariable(payload)
	}

	if frag.Modifiers.Has(output.SurroundWithQuotes) {
		payload = `"` + strings.ReplaceAll(payload, `"`, `\"`) + `"`
	}

	if frag.Modifiers.Has(output.OpenParen) {
		payload = "(" + payload
	}

	if frag.Modifiers.Has(output.CloseParen) {
		payload += ")"
	}

	if _, err := bw.WriteString(payload); err != nil {
		return err
	}

	if frag.Modifiers.Has(output.EndStatement) {
		if err := bw.WriteByte(';'); err != nil {
			return err
		}
	}

	if frag.Modifiers.Has(output.SpaceAfter) {
		if err := bw.WriteByte(' '); err != nil {
			return err
		}
	}

	if frag.Modifiers.Has(output.NewlineAfter) {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return nil
}

// WriteBuffer writes both of a Buffer's streams, source then header, to the
// given writers.
func WriteBuffer(src, hdr io.Writer, b *output.Buffer) error {
	if err := WriteStream(src, &b.Source); err != nil {
		return err
	}

	return WriteStream(hdr, &b.Header)
}
