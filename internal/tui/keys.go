// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type dashboardKeys struct {
	USB       key.Binding
	Auto      key.Binding
	Routing   key.Binding
	Generator key.Binding
	Quit      key.Binding
}

func newDashboardKeys() dashboardKeys {
	return dashboardKeys{
		USB: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "usb stream"),
		),
		Auto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto-priority"),
		),
		Routing: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "routing preset"),
		),
		Generator: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "generator"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k dashboardKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.USB, k.Auto, k.Routing, k.Generator, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k dashboardKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type deviceKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

func newDeviceKeys() deviceKeys {
	return deviceKeys{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k deviceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Quit}
}

func (k deviceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
