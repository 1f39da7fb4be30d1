package help

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ghwatch/internal/theme"
)

// Model is the full-screen key reference overlay.
type Model struct {
	keys   help.KeyMap
	help   help.Model
	title  string
	width  int
	height int
}

// New creates a help overlay for keys.
func New(keys help.KeyMap, title string, width, height int) Model {
	h := help.New()
	h.ShowAll = true
	m := Model{keys: keys, help: h, title: title}
	m.SetSize(width, height)
	return m
}

// ShortView renders the one-line key hints used in status bars.
func (m Model) ShortView() string {
	h := m.help
	h.ShowAll = false
	return h.View(m.keys)
}

// View renders the overlay.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render(m.title)

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.help.View(m.keys))

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

// SetSize updates the overlay dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = max(width-4, 0)
}
