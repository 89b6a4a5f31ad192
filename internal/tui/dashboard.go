// SPDX-License-Identifier: MIT
/*
Package tui is the terminal front end: a live meter dashboard over a
telemetry.Provider and a device browser for picking a capture device.

The dashboard never touches the capture path. It polls snapshots on a
timer and sends operator actions to the configuration boundary (the DSP
store, the USB arbiter, the signal generator).
*/
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"amplifier/internal/dsp"
	"amplifier/internal/siggen"
	"amplifier/internal/telemetry"
	"amplifier/internal/usbprio"
)

// DefaultRefresh is the dashboard poll interval.
const DefaultRefresh = 50 * time.Millisecond

const barWidth = 40

// Controls are the collaborators the dashboard keys act on. Any of them
// may be nil; the matching key then does nothing.
type Controls struct {
	Presence  *usbprio.ManualPresence
	Arbiter   *usbprio.Arbiter
	Store     *dsp.Store
	Generator *siggen.Generator
}

type tickMsg time.Time

// DashboardModel is the Bubble Tea model of the meter dashboard.
type DashboardModel struct {
	provider telemetry.Provider
	ctl      Controls
	refresh  time.Duration
	title    string

	keys  dashboardKeys
	help  help.Model
	snap  telemetry.Snapshot
	width int
	note  string
}

// NewDashboardModel returns a dashboard polling provider every refresh.
func NewDashboardModel(title string, provider telemetry.Provider, ctl Controls, refresh time.Duration) DashboardModel {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return DashboardModel{
		provider: provider,
		ctl:      ctl,
		refresh:  refresh,
		title:    title,
		keys:     newDashboardKeys(),
		help:     help.New(),
		snap:     provider.Snapshot(),
	}
}

func (m DashboardModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling.
func (m DashboardModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles polling ticks, resizes and operator keys.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.provider.Snapshot()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.USB):
			if m.ctl.Presence != nil {
				on := m.ctl.Presence.Toggle()
				m.note = fmt.Sprintf("USB streaming %s", onOff(on))
			}

		case key.Matches(msg, m.keys.Auto):
			if m.ctl.Arbiter != nil {
				on := !m.ctl.Arbiter.Enabled()
				m.ctl.Arbiter.SetEnabled(on)
				m.note = fmt.Sprintf("auto-priority %s", onOff(on))
			}

		case key.Matches(msg, m.keys.Routing):
			if m.ctl.Store != nil {
				m.note = m.cycleRouting()
			}

		case key.Matches(msg, m.keys.Generator):
			if m.ctl.Generator != nil {
				on := !m.ctl.Generator.Active()
				m.ctl.Generator.SetActive(on)
				m.note = fmt.Sprintf("generator %s", onOff(on))
			}
		}
		m.snap = m.provider.Snapshot()
	}
	return m, nil
}

// cycleRouting advances the active routing to the next preset. A custom
// matrix restarts the cycle at identity.
func (m DashboardModel) cycleRouting() string {
	var next dsp.Preset
	err := m.ctl.Store.Mutate(func(c *dsp.Config) error {
		if p, ok := dsp.MatchPreset(c.Routing); ok {
			next = p.Next()
		} else {
			next = dsp.PresetIdentity
		}
		c.Routing = next.Matrix()
		return nil
	})
	if err != nil {
		return "routing: " + err.Error()
	}
	return "routing " + next.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// View renders the dashboard.
func (m DashboardModel) View() string {
	var sb strings.Builder
	s := &m.snap

	header := fmt.Sprintf("%.0f Hz  blocks %d  %s", s.SampleRate, s.Blocks, statusStyle(s.Status()).Render(s.Status().String()))
	sb.WriteString(titleStyle.Render(m.title) + "  " + infoStyle.Render(header) + "\n\n")

	panels := make([]string, 0, telemetry.MaxADCs)
	for i, a := range s.ADCs() {
		panels = append(panels, panelStyle.Render(renderADC(i, a)))
	}
	if len(panels) == 0 {
		sb.WriteString("waiting for capture...\n")
	} else {
		sb.WriteString(lipgloss.JoinVertical(lipgloss.Left, panels...) + "\n")
	}

	sb.WriteString(renderStatusLine(s) + "\n")
	if m.note != "" {
		sb.WriteString(highlightStyle.Render(m.note) + "\n")
	}
	sb.WriteString("\n" + m.help.View(m.keys))
	return sb.String()
}

func renderADC(i int, a telemetry.ADC) string {
	var sb strings.Builder
	d := a.Diagnostics
	fmt.Fprintf(&sb, "ADC%d  %s  %6.1f dBFS  floor %6.1f\n",
		i+1, statusStyle(d.Status).Render(fmt.Sprintf("%-10s", d.Status)), a.DBFS, d.NoiseFloorDBFS)

	for _, ch := range []struct {
		name string
		vu   float64
		peak float64
	}{
		{"L", a.Levels.Left.VU, a.Levels.Left.Peak},
		{"R", a.Levels.Right.VU, a.Levels.Right.Peak},
	} {
		sb.WriteString(labelStyle.Render(ch.name) + levelBar(ch.vu, ch.peak, barWidth) + "\n")
	}
	sb.WriteString(labelStyle.Render("spectrum") + sparkline(a.Spectrum.Bands[:]))
	fmt.Fprintf(&sb, "  %.0f Hz\n", a.Spectrum.DominantHz)
	fmt.Fprintf(&sb, "%s buffers %d  zeros %d  clipped %d  errors %d",
		labelStyle.Render("health"), d.TotalBuffersRead, d.AllZeroBuffers, d.ClippedSamples, d.I2SReadErrors)
	return sb.String()
}

func renderStatusLine(s *telemetry.Snapshot) string {
	syncState := okStyle.Render("in sync")
	if !s.Sync.InSync {
		syncState = errStyle.Render("OUT OF SYNC")
	}
	usb := fmt.Sprintf("USB %s (auto %s, stream %s)", s.USB.State, onOff(s.USB.Enabled), onOff(s.USB.Streaming))
	dspLine := fmt.Sprintf("DSP gen %d, %s, %d stages", s.DSP.Generation, s.DSP.Routing, s.DSP.Stages)
	if s.DSP.GlobalBypass {
		dspLine += ", bypass"
	}
	gen := "gen " + onOff(s.Generator)
	return fmt.Sprintf("%s %+.1f smp  |  %s  |  %s  |  %s", syncState, s.Sync.PhaseOffsetSamples, usb, dspLine, gen)
}

// RunDashboard runs the dashboard in the alternate screen until the
// operator quits.
func RunDashboard(title string, provider telemetry.Provider, ctl Controls) error {
	p := tea.NewProgram(
		NewDashboardModel(title, provider, ctl, DefaultRefresh),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
