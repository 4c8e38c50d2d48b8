package repl

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/ardnew/cakelisp/log"
)

func newTestModel(t *testing.T) model {
	t.Helper()

	ti := textinput.New()
	ti.Focus()

	return model{
		ctx:        context.Background(),
		input:      ti,
		history:    NewHistory(filepath.Join(t.TempDir(), "history.utf8")),
		cacheDir:   filepath.Join(t.TempDir(), "cache"),
		logger:     log.With(),
		width:      defaultWidth,
		historyIdx: 0,
	}
}

func TestStatusLineBeforeAnyInput(t *testing.T) {
	m := newTestModel(t)
	if got := m.statusLine(); !strings.Contains(got, "Ctrl+C") {
		t.Errorf("statusLine() = %q, want a hint mentioning Ctrl+C", got)
	}
}

func TestExecuteInputAcceptsValidForm(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("(defun add (a int b int &return int) (return (+ a b)))")

	m, _ = m.executeInput()

	if m.lastErr != nil {
		t.Fatalf("executeInput() lastErr = %v, want nil", m.lastErr)
	}
	if len(m.sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(m.sources))
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared after executeInput(), got %q", m.input.Value())
	}
	if !m.lastReport.OK() {
		t.Errorf("lastReport not OK: %s", m.lastReport.Diags.String())
	}
}

func TestExecuteInputIgnoresBlankLine(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")

	next, _ := m.executeInput()

	if len(next.sources) != 0 {
		t.Errorf("sources = %d, want 0 for a blank line", len(next.sources))
	}
}

func TestExecuteInputReportsLexError(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("(unterminated \"string")

	m, _ = m.executeInput()

	if m.lastErr == nil {
		t.Fatal("executeInput() with an unterminated string should set lastErr")
	}
	if len(m.sources) != 0 {
		t.Errorf("sources = %d, want 0 when lexing fails", len(m.sources))
	}
}

func TestExecuteInputAccumulatesAcrossCalls(t *testing.T) {
	m := newTestModel(t)

	m.input.SetValue("(defun one (&return int) (return 1))")
	m, _ = m.executeInput()

	m.input.SetValue("(defun main (&return int) (return (one)))")
	m, _ = m.executeInput()

	if len(m.sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(m.sources))
	}
	if !m.lastReport.OK() {
		t.Errorf("lastReport not OK after referencing a prior definition: %s", m.lastReport.Diags.String())
	}
}

func TestHistoryNavigationRecallsEnteredLines(t *testing.T) {
	m := newTestModel(t)

	m.input.SetValue("(+ 1 2)")
	m, _ = m.executeInput()

	m.input.SetValue("(+ 3 4)")
	m, _ = m.executeInput()

	m, _ = m.historyPrev()
	if m.input.Value() != "(+ 3 4)" {
		t.Errorf("historyPrev() = %q, want (+ 3 4)", m.input.Value())
	}

	m, _ = m.historyPrev()
	if m.input.Value() != "(+ 1 2)" {
		t.Errorf("historyPrev() = %q, want (+ 1 2)", m.input.Value())
	}

	m, _ = m.historyNext()
	if m.input.Value() != "(+ 3 4)" {
		t.Errorf("historyNext() = %q, want (+ 3 4)", m.input.Value())
	}

	m, _ = m.historyNext()
	if m.input.Value() != "" {
		t.Errorf("historyNext() past the end = %q, want empty", m.input.Value())
	}
}

func TestHistoryPrevAtTopIsNoOp(t *testing.T) {
	m := newTestModel(t)
	m.historyIdx = 0

	next, _ := m.historyPrev()
	if next.input.Value() != "" {
		t.Errorf("historyPrev() at top = %q, want unchanged empty value", next.input.Value())
	}
}

func TestRefreshCandidatesFindsDefinedName(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("(defun double-it (x int &return int) (return (* x 2)))")
	m, _ = m.executeInput()

	m.input.SetValue("(doub")
	m.input.SetCursor(5)
	m.refreshCandidates()

	found := false
	for _, match := range m.matches {
		if match.Str == "double-it" {
			found = true
		}
	}
	if !found {
		t.Errorf("refreshCandidates() matches = %v, want double-it among them", m.matches)
	}
}

func TestHandleTabSubstitutesChosenCandidate(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("(defu")
	m.input.SetCursor(5)
	m.refreshCandidates()

	if len(m.matches) == 0 {
		t.Fatal("expected at least one fuzzy match for 'defu'")
	}

	m, _ = m.handleTab(1)
	if !strings.Contains(m.input.Value(), m.matches[m.suggIdx].Str) {
		t.Errorf("handleTab() value = %q, want it to contain the chosen candidate", m.input.Value())
	}
}
