package commandline

import (
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/meszmate/conference/internal/ui/theme"
)

// SubmitMsg is sent when a line is entered
type SubmitMsg struct {
	Line string
}

// Model is a single input line with history and command completion
type Model struct {
	input       []rune
	cursorPos   int
	styles      *theme.Styles
	commands    []string
	completions []string
	compIndex   int
	history     []string
	historyPos  int
}

// New creates a command line completing the given command names
func New(styles *theme.Styles, commands []string) Model {
	names := append([]string(nil), commands...)
	sort.Strings(names)
	return Model{
		styles:     styles,
		commands:   names,
		historyPos: -1,
	}
}

// SetStyles switches the styles, e.g. after a theme change
func (m Model) SetStyles(styles *theme.Styles) Model {
	m.styles = styles
	return m
}

// Value returns the current input
func (m Model) Value() string {
	return string(m.input)
}

// Clear clears the input
func (m Model) Clear() Model {
	m.input = nil
	m.cursorPos = 0
	m.completions = nil
	m.compIndex = 0
	return m
}

func (m Model) setInput(s string) Model {
	m.input = []rune(s)
	m.cursorPos = len(m.input)
	return m
}

// Update handles key messages
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.Type {
	case tea.KeyRunes, tea.KeySpace:
		runes := key.Runes
		if key.Type == tea.KeySpace {
			runes = []rune{' '}
		}
		input := append([]rune(nil), m.input[:m.cursorPos]...)
		input = append(input, runes...)
		m.input = append(input, m.input[m.cursorPos:]...)
		m.cursorPos += len(runes)
		m.completions = nil

	case tea.KeyBackspace:
		if m.cursorPos > 0 {
			m.input = append(m.input[:m.cursorPos-1:m.cursorPos-1], m.input[m.cursorPos:]...)
			m.cursorPos--
			m.completions = nil
		}

	case tea.KeyDelete:
		if m.cursorPos < len(m.input) {
			m.input = append(m.input[:m.cursorPos:m.cursorPos], m.input[m.cursorPos+1:]...)
			m.completions = nil
		}

	case tea.KeyLeft:
		if m.cursorPos > 0 {
			m.cursorPos--
		}

	case tea.KeyRight:
		if m.cursorPos < len(m.input) {
			m.cursorPos++
		}

	case tea.KeyHome, tea.KeyCtrlA:
		m.cursorPos = 0

	case tea.KeyEnd, tea.KeyCtrlE:
		m.cursorPos = len(m.input)

	case tea.KeyUp:
		if m.historyPos < len(m.history)-1 {
			m.historyPos++
			m = m.setInput(m.history[len(m.history)-1-m.historyPos])
		}

	case tea.KeyDown:
		if m.historyPos > 0 {
			m.historyPos--
			m = m.setInput(m.history[len(m.history)-1-m.historyPos])
		} else if m.historyPos == 0 {
			m.historyPos = -1
			m = m.Clear()
		}

	case tea.KeyTab:
		m = m.complete()

	case tea.KeyEnter:
		line := strings.TrimSpace(string(m.input))
		if line == "" {
			return m, nil
		}
		m.history = append(m.history, line)
		m.historyPos = -1
		m = m.Clear()
		return m, func() tea.Msg {
			return SubmitMsg{Line: line}
		}

	case tea.KeyCtrlU:
		m.input = append([]rune(nil), m.input[m.cursorPos:]...)
		m.cursorPos = 0
		m.completions = nil

	case tea.KeyCtrlW:
		if m.cursorPos > 0 {
			pos := m.cursorPos - 1
			for pos > 0 && m.input[pos] == ' ' {
				pos--
			}
			for pos > 0 && m.input[pos-1] != ' ' {
				pos--
			}
			m.input = append(m.input[:pos:pos], m.input[m.cursorPos:]...)
			m.cursorPos = pos
			m.completions = nil
		}
	}

	return m, nil
}

// complete completes the command name under the cursor, cycling through the
// candidates on repeated presses.
func (m Model) complete() Model {
	if m.completions == nil {
		m.completions = m.getCompletions()
		m.compIndex = 0
	} else {
		m.compIndex++
		if m.compIndex >= len(m.completions) {
			m.compIndex = 0
		}
	}

	if len(m.completions) > 0 {
		m = m.setInput("/" + m.completions[m.compIndex] + " ")
	}
	return m
}

// getCompletions returns the commands matching the typed prefix. Only the
// command name is completed.
func (m Model) getCompletions() []string {
	input := string(m.input)
	if !strings.HasPrefix(input, "/") || strings.ContainsAny(input, " \t") {
		return nil
	}
	prefix := strings.ToLower(input[1:])

	var completions []string
	for _, name := range m.commands {
		if strings.HasPrefix(name, prefix) {
			completions = append(completions, name)
		}
	}
	return completions
}

// View renders the input with its cursor and any completion hint
func (m Model) View() string {
	before := string(m.input[:m.cursorPos])
	after := ""
	cursorChar := " "
	if m.cursorPos < len(m.input) {
		cursorChar = string(m.input[m.cursorPos])
		after = string(m.input[m.cursorPos+1:])
	}

	cursor := lipgloss.NewStyle().Reverse(true).Render(cursorChar)
	view := before + cursor + after

	if len(m.completions) > 1 {
		view += m.styles.Completion.Render(" (" + strings.Join(m.completions, " | ") + ")")
	}
	return view
}
