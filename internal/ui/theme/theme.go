package theme

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
)

// Theme represents a complete UI theme
type Theme struct {
	Name        string       `toml:"name"`
	Description string       `toml:"description"`
	Colors      ColorsConfig `toml:"colors"`
}

// ColorsConfig contains the base color palette
type ColorsConfig struct {
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`
	Accent    string `toml:"accent"`
	Muted     string `toml:"muted"`
	Error     string `toml:"error"`
	Warning   string `toml:"warning"`
	Success   string `toml:"success"`
	Nick      string `toml:"nick"`
	Private   string `toml:"private"`
}

// Styles contains the compiled lipgloss styles for a theme
type Styles struct {
	Timestamp lipgloss.Style
	Room      lipgloss.Style
	Nick      lipgloss.Style
	Body      lipgloss.Style
	Private   lipgloss.Style
	System    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style

	// Command line
	Completion lipgloss.Style

	// Room states
	StateJoined   lipgloss.Style
	StateJoining  lipgloss.Style
	StateUnjoined lipgloss.Style
}

// DefaultTheme is the built-in palette
func DefaultTheme() *Theme {
	return &Theme{
		Name:        "default",
		Description: "Terminal-friendly ANSI colors",
		Colors: ColorsConfig{
			Primary:   "12",
			Secondary: "14",
			Accent:    "13",
			Muted:     "8",
			Error:     "9",
			Warning:   "11",
			Success:   "10",
			Nick:      "14",
			Private:   "13",
		},
	}
}

// NordTheme is a muted palette based on Nord
func NordTheme() *Theme {
	return &Theme{
		Name:        "nord",
		Description: "Arctic, north-bluish palette",
		Colors: ColorsConfig{
			Primary:   "#88C0D0",
			Secondary: "#81A1C1",
			Accent:    "#B48EAD",
			Muted:     "#4C566A",
			Error:     "#BF616A",
			Warning:   "#EBCB8B",
			Success:   "#A3BE8C",
			Nick:      "#8FBCBB",
			Private:   "#B48EAD",
		},
	}
}

// Manager handles theme loading and switching
type Manager struct {
	themes      map[string]*Theme
	current     *Theme
	currentName string
	styles      *Styles
	themeDirs   []string
}

// NewManager creates a new theme manager
func NewManager(themeDirs ...string) *Manager {
	m := &Manager{
		themes:    make(map[string]*Theme),
		themeDirs: themeDirs,
	}

	m.themes["default"] = DefaultTheme()
	m.themes["nord"] = NordTheme()

	m.current = m.themes["default"]
	m.currentName = "default"
	m.styles = compileStyles(m.current)

	return m
}

// LoadTheme loads a theme from a TOML file
func (m *Manager) LoadTheme(name string) error {
	for _, dir := range m.themeDirs {
		path := filepath.Join(dir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			theme := *DefaultTheme()
			if _, err := toml.DecodeFile(path, &theme); err != nil {
				return fmt.Errorf("failed to parse theme file %s: %w", path, err)
			}
			theme.Name = name
			m.themes[name] = &theme
			return nil
		}
	}
	return fmt.Errorf("theme %s not found", name)
}

// SetTheme switches to a different theme
func (m *Manager) SetTheme(name string) error {
	theme, ok := m.themes[name]
	if !ok {
		if err := m.LoadTheme(name); err != nil {
			return err
		}
		theme = m.themes[name]
	}

	m.current = theme
	m.currentName = name
	m.styles = compileStyles(theme)
	return nil
}

// Current returns the current theme
func (m *Manager) Current() *Theme {
	return m.current
}

// CurrentName returns the current theme name
func (m *Manager) CurrentName() string {
	return m.currentName
}

// Styles returns the compiled styles for the current theme
func (m *Manager) Styles() *Styles {
	return m.styles
}

// AvailableThemes returns the sorted names of loaded themes
func (m *Manager) AvailableThemes() []string {
	names := make([]string, 0, len(m.themes))
	for name := range m.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compileStyles compiles a theme into lipgloss styles
func compileStyles(t *Theme) *Styles {
	c := t.Colors
	s := &Styles{}

	s.Timestamp = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted))
	s.Room = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Primary)).Bold(true)
	s.Nick = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Nick)).Bold(true)
	s.Body = lipgloss.NewStyle()
	s.Private = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Private)).Italic(true)
	s.System = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Secondary))
	s.Success = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Success))
	s.Warning = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Warning))
	s.Error = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Error)).Bold(true)
	s.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Accent)).Bold(true)
	s.Completion = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted))

	s.StateJoined = s.Success
	s.StateJoining = s.Warning
	s.StateUnjoined = s.Timestamp

	return s
}
