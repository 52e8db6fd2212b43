package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// ErrInterrupted is returned by ReadLine when the user presses Ctrl-C.
var ErrInterrupted = errors.New("interrupted")

// LineEditor reads one line at a time. On a terminal it runs a small
// bubbletea program with history and slash-command completion; otherwise
// it reads plain lines.
type LineEditor struct {
	in          io.Reader
	out         io.Writer
	interactive bool
	scanner     *bufio.Scanner

	suggestions []string
	history     []string
}

func NewLineEditor(in io.Reader, out io.Writer, interactive bool) *LineEditor {
	e := &LineEditor{in: in, out: out, interactive: interactive}
	if !interactive {
		e.scanner = bufio.NewScanner(in)
		e.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	}
	return e
}

// SetSuggestions sets the completions offered with Tab.
func (e *LineEditor) SetSuggestions(s []string) {
	e.suggestions = s
}

// ReadLine shows prompt and returns the entered line. It returns io.EOF on
// Ctrl-D at an empty line or end of input, and ErrInterrupted on Ctrl-C.
func (e *LineEditor) ReadLine(ctx context.Context, prompt string) (string, error) {
	if !e.interactive {
		return e.readPlain(prompt)
	}

	m := newInputModel(prompt, e.suggestions, e.history)
	p := tea.NewProgram(m, tea.WithInput(e.in), tea.WithOutput(e.out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	res := final.(inputModel)
	switch {
	case res.canceled:
		return "", ErrInterrupted
	case res.eof:
		return "", io.EOF
	}
	line := res.input.Value()
	if strings.TrimSpace(line) != "" {
		e.history = append(e.history, line)
	}
	return line, nil
}

func (e *LineEditor) readPlain(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(e.out, prompt)
	}
	if !e.scanner.Scan() {
		if err := e.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return e.scanner.Text(), nil
}

type inputModel struct {
	input      textinput.Model
	history    []string
	historyPos int

	done     bool
	canceled bool
	eof      bool
}

func newInputModel(prompt string, suggestions, history []string) inputModel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.PromptStyle = UserStyle
	ti.CharLimit = 0
	ti.ShowSuggestions = len(suggestions) > 0
	ti.SetSuggestions(suggestions)
	ti.Focus()
	return inputModel{input: ti, history: history, historyPos: len(history)}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC:
			m.canceled = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				m.eof = true
				return m, tea.Quit
			}
		case tea.KeyUp:
			if m.historyPos > 0 {
				m.historyPos--
				m.input.SetValue(m.history[m.historyPos])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.historyPos < len(m.history) {
				m.historyPos++
				value := ""
				if m.historyPos < len(m.history) {
					value = m.history[m.historyPos]
				}
				m.input.SetValue(value)
				m.input.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done || m.canceled || m.eof {
		// Leave the submitted line in the scrollback without the cursor.
		return m.input.PromptStyle.Render(m.input.Prompt) + m.input.Value() + "\n"
	}
	return m.input.View()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or 80 when it is not a terminal.
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// ReadPassphrase prompts on out and reads a line from the terminal f
// without echo.
func ReadPassphrase(f *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(b), nil
}
