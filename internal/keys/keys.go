package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the outbox browser.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Detail pane
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Help toggle
	Help key.Binding

	// Reload from the store
	Refresh key.Binding

	// Status filters
	FilterPending key.Binding
	FilterSent    key.Binding
	FilterFailed  key.Binding
	FilterAll     key.Binding

	// Actions
	Reset    key.Binding
	ResetAll key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "show payload"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		FilterPending: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "pending"),
		),
		FilterSent: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "sent"),
		),
		FilterFailed: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "failed"),
		),
		FilterAll: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "all"),
		),
		Reset: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "retry failed"),
		),
		ResetAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "retry all failed"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Reset, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.FilterPending, k.FilterSent, k.FilterFailed, k.FilterAll},
		{k.Reset, k.ResetAll, k.Refresh, k.Help},
	}
}
