package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the dashboard key bindings
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Rotate     key.Binding
	Mode       key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.VolumeUp, k.VolumeDown, k.Rotate, k.Mode, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Toggle, k.VolumeUp, k.VolumeDown},
		{k.Rotate, k.Mode},
		{k.Refresh, k.Help, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "display on/off"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "volume down"),
		),
		Rotate: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "rotate"),
		),
		Mode: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mode"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
