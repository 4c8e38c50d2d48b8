// Package repl implements an interactive dashboard over internal/module's
// fixed-point translation loop: every line accepted at the prompt is
// appended to the running source buffer, and the whole buffer is
// re-translated in evaluation mode (spec.md §7's "Eval" behavior, no output
// written to disk), so the view always reflects the current build-driver
// iteration count and any outstanding diagnostics.
package repl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/cakelisp/internal/lexer"
	"github.com/ardnew/cakelisp/internal/module"
	"github.com/ardnew/cakelisp/internal/token"
	"github.com/ardnew/cakelisp/log"
)

const prompt = "➜ "

type inputMode int

const (
	modeEval inputMode = iota
	modeCtrl
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type model struct {
	ctx        context.Context
	input      textinput.Model
	history    *History
	historyIdx int
	lines      []string
	sources    []*token.Array
	cacheDir   string
	logger     log.Logger

	lastReport module.Report
	lastErr    error

	matches    fuzzy.Matches
	candidates []string
	suggIdx    int
	tabActive  bool

	width    int
	quitting bool
}

// Run starts the dashboard, seeding the session with any source already
// lexed from files named on the command line.
func Run(ctx context.Context, seed []*token.Array, cacheDir string, logger log.Logger) error {
	history := NewHistory(filepath.Join(cacheDir, baseHistory))
	if err := history.Load(); err != nil {
		fmt.Printf("warning: could not load history: %v\n", err)
	}

	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Focus()
	ti.CharLimit = 1024
	ti.Width = defaultWidth

	m := model{
		ctx:        ctx,
		input:      ti,
		history:    history,
		historyIdx: history.Len(),
		sources:    append([]*token.Array(nil), seed...),
		cacheDir:   cacheDir,
		logger:     logger,
		width:      defaultWidth,
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()

	return err
}

const defaultWidth = 80

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - lipgloss.Width(prompt) - 2

		return m, nil
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	m.refreshCandidates()

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")

	switch {
	case strings.TrimSpace(m.input.Value()) == "":
		b.WriteString(hintStyle.Render(m.statusLine()))
		b.WriteString("\n")
	case len(m.matches) > 0:
		b.WriteString(renderCandidateBar(m.matches, m.suggIdx, m.width))
		b.WriteString("\n")
	default:
		b.WriteString("\n")
	}

	return b.String()
}

// statusLine summarizes the last translation's outcome: iteration count and
// diagnostic count, or a hint when nothing has been entered yet.
func (m model) statusLine() string {
	if len(m.sources) == 0 {
		return "Type a cakelisp form and press Enter. Ctrl+C or Ctrl+D to exit."
	}

	if m.lastErr != nil {
		return errorStyle.Render("lex error: " + m.lastErr.Error())
	}

	if m.lastReport.OK() {
		return okStyle.Render(fmt.Sprintf(
			"ok — %d iteration(s), %d definition(s) entered",
			m.lastReport.Iterations, len(m.sources),
		))
	}

	return errorStyle.Render(fmt.Sprintf(
		"%d diagnostic(s) — %s",
		m.lastReport.Diags.Count(), m.lastReport.Diags.String(),
	))
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+d":
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		m.input.SetValue("")
		m.refreshCandidates()

		return m, nil

	case "enter":
		return m.executeInput()

	case "up":
		return m.historyPrev()

	case "down":
		return m.historyNext()

	case "tab":
		return m.handleTab(1)

	case "shift+tab":
		return m.handleTab(-1)
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	m.refreshCandidates()

	return m, cmd
}

func (m model) executeInput() (model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}

	arr, err := lexer.New(fmt.Sprintf("<repl:%d>", len(m.sources)+1), strings.NewReader(line)).Lex()
	if err != nil {
		m.lastErr = err
		m.input.SetValue("")
		m.historyIdx = m.history.Len()

		return m, nil
	}

	m.lastErr = nil
	m.lines = append(m.lines, line)
	m.sources = append(m.sources, arr)

	m.lastReport = module.Translate(m.ctx, m.sources, io.Discard, io.Discard, module.Options{
		CacheDir: m.cacheDir,
		Logger:   m.logger,
	})

	if _, err := m.history.WriteWithMode(line, modeEval); err != nil {
		m.logger.WarnContext(m.ctx, "repl: write history failed", slog.String("error", err.Error()))
	}

	m.input.SetValue("")
	m.historyIdx = m.history.Len()
	m.refreshCandidates()

	return m, nil
}

func (m model) historyPrev() (model, tea.Cmd) {
	if m.historyIdx <= 0 {
		return m, nil
	}

	m.historyIdx--

	entry, err := m.history.GetEntry(m.historyIdx)
	if err != nil {
		return m, nil
	}

	m.input.SetValue(entry.Line)
	m.input.SetCursor(len(entry.Line))

	return m, nil
}

func (m model) historyNext() (model, tea.Cmd) {
	if m.historyIdx >= m.history.Len()-1 {
		m.historyIdx = m.history.Len()
		m.input.SetValue("")

		return m, nil
	}

	m.historyIdx++

	entry, err := m.history.GetEntry(m.historyIdx)
	if err != nil {
		return m, nil
	}

	m.input.SetValue(entry.Line)
	m.input.SetCursor(len(entry.Line))

	return m, nil
}

func (m *model) refreshCandidates() {
	word, _, _ := wordBounds(m.input.Value(), m.input.Position())
	m.tabActive = false
	m.suggIdx = 0

	if word == "" {
		m.matches = nil

		return
	}

	candidates := append(append([]string(nil), builtinCandidates...), definedNames(m.lines)...)
	m.candidates = candidates
	m.matches = fuzzy.Find(word, candidates)
}

func (m model) handleTab(step int) (model, tea.Cmd) {
	if len(m.matches) == 0 {
		return m, nil
	}

	m.tabActive = true
	m.suggIdx = ((m.suggIdx+step)%len(m.matches) + len(m.matches)) % len(m.matches)

	word, start, end := wordBounds(m.input.Value(), m.input.Position())
	_ = word

	chosen := m.matches[m.suggIdx].Str
	value := m.input.Value()
	newValue := value[:start] + chosen + value[end:]

	m.input.SetValue(newValue)
	m.input.SetCursor(start + len(chosen))

	return m, nil
}
