// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"amplifier/internal/audio"
)

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// DeviceListModel browses host capture devices. Only devices with at
// least minInputs input channels can be selected.
type DeviceListModel struct {
	fetch     func() ([]audio.Device, error)
	minInputs int

	devices  []audio.Device
	cursor   int
	selected int
	viewport viewport.Model
	keys     deviceKeys
	help     help.Model
	ready    bool
	err      error
}

// NewDeviceListModel returns a browser over fetch, normally
// audio.HostDevices.
func NewDeviceListModel(fetch func() ([]audio.Device, error), minInputs int) DeviceListModel {
	return DeviceListModel{
		fetch:     fetch,
		minInputs: minInputs,
		selected:  -1,
		keys:      newDeviceKeys(),
		help:      help.New(),
	}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) usable(i int) bool {
	return i >= 0 && i < len(m.devices) && m.devices[i].MaxInputChannels >= m.minInputs
}

// Update handles navigation and selection.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.help.Width = msg.Width
		m.viewport.SetContent(m.renderDevices())

	case devicesMsg:
		m.devices = msg.devices
		m.viewport.SetContent(m.renderDevices())

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.devices)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Select):
			if m.usable(m.cursor) {
				m.selected = m.devices[m.cursor].ID
				return m, tea.Quit
			}
		}
		m.viewport.SetContent(m.renderDevices())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Selected returns the chosen device ID, or -1 if the browser was left
// without a choice.
func (m DeviceListModel) Selected() int { return m.selected }

// View renders the browser.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}
	title := titleStyle.Render("Capture Devices")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), m.help.View(m.keys))
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		line := fmt.Sprintf("[%d] %s\n    inputs %d, outputs %d, %.0f Hz\n",
			d.ID, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		switch {
		case i == m.cursor && m.usable(i):
			line = highlightStyle.Render(line)
		case !m.usable(i):
			line = lipgloss.NewStyle().Faint(true).Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the browser and returns the chosen device ID, or -1.
func PickDevice(minInputs int) (int, error) {
	p := tea.NewProgram(
		NewDeviceListModel(audio.HostDevices, minInputs),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return -1, err
	}
	return final.(DeviceListModel).Selected(), nil
}
