// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"amplifier/internal/audio"
	"amplifier/internal/dsp"
	"amplifier/internal/health"
	"amplifier/internal/siggen"
	"amplifier/internal/telemetry"
	"amplifier/internal/usbprio"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func testSnapshot() telemetry.Snapshot {
	var s telemetry.Snapshot
	s.SampleRate = 48000
	s.Blocks = 42
	s.ADCCount = 2
	s.Sync.InSync = true
	s.DSP.Routing = dsp.PresetIdentity.String()
	for i := range s.ADC {
		s.ADC[i].DBFS = -12
		s.ADC[i].Levels.Left.VU = 0.25
		s.ADC[i].Levels.Left.Peak = 0.5
		s.ADC[i].Spectrum.DominantHz = 1000
		s.ADC[i].Spectrum.Bands[5] = 1
		s.ADC[i].Diagnostics.Status = health.OK
	}
	s.ADC[1].Diagnostics.Status = health.Clipping
	return s
}

func newTestDashboard(t *testing.T) (DashboardModel, Controls) {
	t.Helper()
	store := dsp.NewStore(dsp.NewConfig(48000))
	presence := &usbprio.ManualPresence{}
	gen, err := siggen.New(48000)
	if err != nil {
		t.Fatal(err)
	}
	ctl := Controls{
		Presence:  presence,
		Arbiter:   usbprio.New(store, presence, usbprio.DefaultOptions()),
		Store:     store,
		Generator: gen,
	}
	provider := telemetry.ProviderFunc(testSnapshot)
	return NewDashboardModel("amplifier", provider, ctl, 0), ctl
}

func press(m DashboardModel, r rune) DashboardModel {
	next, _ := m.Update(runeKey(r))
	return next.(DashboardModel)
}

func TestDashboardKeys(t *testing.T) {
	m, ctl := newTestDashboard(t)

	m = press(m, 'u')
	if !ctl.Presence.Streaming() || m.note != "USB streaming on" {
		t.Errorf("u: streaming %v, note %q", ctl.Presence.Streaming(), m.note)
	}

	was := ctl.Arbiter.Enabled()
	m = press(m, 'a')
	if ctl.Arbiter.Enabled() == was {
		t.Error("a did not toggle auto-priority")
	}

	m = press(m, 'g')
	if !ctl.Generator.Active() {
		t.Error("g did not start the generator")
	}
	m = press(m, 'g')
	if ctl.Generator.Active() {
		t.Error("g did not stop the generator")
	}

	m = press(m, 'x')
	if m.note != "generator off" {
		t.Errorf("unbound key changed the note to %q", m.note)
	}
}

func TestDashboardCyclesRouting(t *testing.T) {
	m, ctl := newTestDashboard(t)

	want := []dsp.Preset{dsp.PresetIdentity.Next(), dsp.PresetIdentity.Next().Next()}
	for i, p := range want {
		m = press(m, 'r')
		got, ok := dsp.MatchPreset(ctl.Store.Snapshot().Routing)
		if !ok || got != p {
			t.Errorf("press %d: routing %v (preset %v), want %v", i+1, got, ok, p)
		}
		if ctl.Store.Generation() != uint64(i+1) {
			t.Errorf("press %d: generation %d", i+1, ctl.Store.Generation())
		}
	}

	if err := ctl.Store.Mutate(func(c *dsp.Config) error {
		c.Routing[0][1] = 0.3
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	m = press(m, 'r')
	if got, ok := dsp.MatchPreset(ctl.Store.Snapshot().Routing); !ok || got != dsp.PresetIdentity {
		t.Errorf("custom matrix cycled to %v", got)
	}
	if !strings.Contains(m.note, dsp.PresetIdentity.String()) {
		t.Errorf("note = %q", m.note)
	}
}

func TestDashboardQuit(t *testing.T) {
	m, _ := newTestDashboard(t)
	_, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestDashboardTickRefreshes(t *testing.T) {
	calls := 0
	provider := telemetry.ProviderFunc(func() telemetry.Snapshot {
		calls++
		s := testSnapshot()
		s.Blocks = uint64(calls)
		return s
	})
	m := NewDashboardModel("amplifier", provider, Controls{}, time.Millisecond)
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick did not reschedule")
	}
	if got := next.(DashboardModel).snap.Blocks; got != 2 {
		t.Errorf("blocks = %d, want the refreshed snapshot", got)
	}
}

func TestDashboardView(t *testing.T) {
	m, _ := newTestDashboard(t)
	view := m.View()
	for _, want := range []string{"amplifier", "ADC1", "ADC2", "CLIPPING", "1000 Hz", "in sync", "DSP gen 0", "identity"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestLevelCells(t *testing.T) {
	tests := []struct {
		level float64
		want  int
	}{
		{0, 0},
		{-1, 0},
		{1, 40},
		{2, 40},
		{0.001, 0},   // -60 dB
		{0.0316, 20}, // -30 dB
	}
	for _, tt := range tests {
		if got := levelCells(tt.level, 40); got != tt.want {
			t.Errorf("levelCells(%v) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]float64{0, 0.5, 1, 2, -1}); got != "▁▅██▁" {
		t.Errorf("sparkline = %q", got)
	}
}

func TestDeviceList(t *testing.T) {
	devices := []audio.Device{
		{ID: 0, Name: "Headphones", MaxOutputChannels: 2},
		{ID: 1, Name: "Converter Pair", MaxInputChannels: 4},
	}
	m := NewDeviceListModel(func() ([]audio.Device, error) { return devices, nil }, 4)

	msg := m.Init()()
	next, _ := m.Update(msg)
	next, _ = next.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if next.(DeviceListModel).Selected() != -1 {
		t.Error("selected a device without inputs")
	}
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := next.(DeviceListModel).Selected(); got != 1 {
		t.Errorf("selected %d, want 1", got)
	}
	if cmd == nil {
		t.Error("selection did not quit")
	}
	if view := next.View(); !strings.Contains(view, "Converter Pair") {
		t.Errorf("view = %q", view)
	}
}

func TestDeviceListError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no host") }, 2)
	next, _ := m.Update(m.Init()())
	if view := next.View(); !strings.Contains(view, "no host") {
		t.Errorf("view = %q", view)
	}
}
