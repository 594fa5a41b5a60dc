package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Raise       key.Binding
	Lower       key.Binding
	Toggle      key.Binding
	ToggleGroup key.Binding
	Healthy     key.Binding
	Preview     key.Binding
	Compute     key.Binding
	Export      key.Binding
	Yes         key.Binding
	No          key.Binding
	Quit        key.Binding
	ForceQuit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Raise:       key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "next group")),
		Lower:       key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "previous group")),
		Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle file")),
		ToggleGroup: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "toggle group")),
		Healthy:     key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "healthy group")),
		Preview:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		Compute:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compute means")),
		Export:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Yes:         key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "overwrite")),
		No:          key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "cancel")),
		Quit:        key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit:   key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Raise, k.Lower, k.Toggle, k.ToggleGroup, k.Preview, k.Compute, k.Export, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Raise, k.Lower},
		{k.Toggle, k.ToggleGroup, k.Healthy},
		{k.Preview, k.Compute, k.Export, k.Quit},
	}
}

type confirmKeys struct {
	keyMap
}

func (k confirmKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Yes, k.No}
}

func (k confirmKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
