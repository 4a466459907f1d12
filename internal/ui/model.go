package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/meszmate/conference/internal/app"
	"github.com/meszmate/conference/internal/ui/components/commandline"
	"github.com/meszmate/conference/internal/ui/theme"
)

// maxLines is how many rendered lines the log keeps
const maxLines = 1000

const themeHelp = "/theme [name]"

// Application is the part of the app the UI drives
type Application interface {
	Execute(line string) error
	ListenForEvents() tea.Cmd
}

// commandResultMsg carries the outcome of a command run off the UI loop
type commandResultMsg struct {
	err error
}

// Model is the root Bubble Tea model: a scrolling event log above an input
// line.
type Model struct {
	app      Application
	themes   *theme.Manager
	renderer *Renderer
	input    commandline.Model

	lines    []string
	width    int
	height   int
	quitting bool

	onThemeChange func(name string)
}

// NewModel creates a new root model
func NewModel(application Application, themes *theme.Manager) Model {
	commands := append(app.CommandNames(), "theme")
	return Model{
		app:      application,
		themes:   themes,
		renderer: NewRenderer(themes.Styles()),
		input:    commandline.New(themes.Styles(), commands),
	}
}

// OnThemeChange sets a function called with the theme's name after /theme
// switches to it.
func (m Model) OnThemeChange(fn func(name string)) Model {
	m.onThemeChange = fn
	return m
}

// Init starts listening for app events
func (m Model) Init() tea.Cmd {
	return m.app.ListenForEvents()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case commandline.SubmitMsg:
		return m.submit(msg.Line)

	case commandResultMsg:
		if errors.Is(msg.err, app.ErrQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		if msg.err != nil {
			m = m.appendLines(m.renderer.Error(msg.err))
		}

	case app.EventMsg:
		m = m.appendLines(m.renderer.Render(msg)...)
		if msg.Type == app.EventHelp {
			m = m.appendLines(m.renderer.Info(themeHelp))
		}
		return m, m.app.ListenForEvents()
	}

	return m, nil
}

// submit runs an entered line. Theme commands are handled here, everything
// else goes to the app without blocking the UI loop.
func (m Model) submit(line string) (Model, tea.Cmd) {
	fields := strings.Fields(line)
	if len(fields) > 0 && strings.EqualFold(fields[0], "/theme") {
		switch len(fields) {
		case 1:
			return m.appendLines(m.renderer.Info("themes: %s (current: %s)",
				strings.Join(m.themes.AvailableThemes(), ", "), m.themes.CurrentName())), nil
		case 2:
			return m.switchTheme(fields[1]), nil
		default:
			return m.appendLines(m.renderer.Error(fmt.Errorf("usage: %s", themeHelp))), nil
		}
	}

	application := m.app
	return m, func() tea.Msg {
		return commandResultMsg{err: application.Execute(line)}
	}
}

func (m Model) switchTheme(name string) Model {
	if err := m.themes.SetTheme(name); err != nil {
		return m.appendLines(m.renderer.Error(fmt.Errorf("%w (available: %s)", err, strings.Join(m.themes.AvailableThemes(), ", "))))
	}
	m.renderer = NewRenderer(m.themes.Styles())
	m.input = m.input.SetStyles(m.themes.Styles())
	if m.onThemeChange != nil {
		m.onThemeChange(name)
	}
	return m.appendLines(m.renderer.Info("theme set to %s", name))
}

func (m Model) appendLines(lines ...string) Model {
	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = append([]string(nil), m.lines[over:]...)
	}
	return m
}

// View renders the log and the input line
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	lines := m.lines
	rows := m.height - 1
	if rows > 0 && len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}

	var b strings.Builder
	for i := len(lines); i < rows; i++ {
		b.WriteByte('\n')
	}
	style := lipgloss.NewStyle()
	if m.width > 0 {
		style = style.MaxWidth(m.width)
	}
	for _, line := range lines {
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	b.WriteString(m.renderer.Prompt())
	b.WriteString(m.input.View())
	return b.String()
}
