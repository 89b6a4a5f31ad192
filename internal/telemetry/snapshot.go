// SPDX-License-Identifier: MIT
/*
Package telemetry defines the published view of the audio core and the
publisher that pushes it to the configured transports.

A Snapshot is a plain value: the engine fills one under its publish lock
and readers receive copies, so a snapshot never changes after it has
been handed out.
*/
package telemetry

import (
	"time"

	"amplifier/internal/analysis"
	"amplifier/internal/health"
	"amplifier/internal/meter"
	"amplifier/internal/usbprio"
)

// MaxADCs is the number of stereo converters the core meters.
const MaxADCs = 2

// Levels are the meter states of one stereo pair.
type Levels struct {
	Left     meter.State `json:"left"`
	Right    meter.State `json:"right"`
	Combined meter.State `json:"combined"`
}

// ADC is everything published for one converter.
type ADC struct {
	Levels      Levels                   `json:"levels"`
	DBFS        float64                  `json:"dbfs"`
	Spectrum    analysis.Spectrum        `json:"spectrum"`
	Waveform    [meter.WaveformBins]byte `json:"waveform"`
	Diagnostics health.Diagnostics       `json:"diagnostics"`
}

// USB is the published state of the auto-priority arbiter.
type USB struct {
	Enabled   bool          `json:"enabled"`
	Streaming bool          `json:"streaming"`
	State     usbprio.State `json:"state"`
}

// DSP summarises the active DSP configuration.
type DSP struct {
	Generation   uint64 `json:"generation"`
	GlobalBypass bool   `json:"global_bypass"`
	Stages       int    `json:"stages"`
	Routing      string `json:"routing"`
}

// Snapshot is one published view of the audio core.
type Snapshot struct {
	Timestamp  time.Time         `json:"timestamp"`
	SampleRate float64           `json:"sample_rate"`
	Blocks     uint64            `json:"blocks"`
	ADCCount   int               `json:"adc_count"`
	ADC        [MaxADCs]ADC      `json:"adc"`
	Sync       analysis.SyncDiag `json:"sync"`
	USB        USB               `json:"usb"`
	DSP        DSP               `json:"dsp"`
	Generator  bool              `json:"generator"`
}

// ADCs returns the populated converters.
func (s *Snapshot) ADCs() []ADC {
	n := min(max(s.ADCCount, 0), MaxADCs)
	return s.ADC[:n]
}

// Status returns the worst health status across the populated converters.
func (s *Snapshot) Status() health.Status {
	worst := health.OK
	for _, a := range s.ADCs() {
		if severity(a.Diagnostics.Status) > severity(worst) {
			worst = a.Diagnostics.Status
		}
	}
	return worst
}

func severity(st health.Status) int {
	switch st {
	case health.I2SError:
		return 5
	case health.HWFault:
		return 4
	case health.Clipping:
		return 3
	case health.NoData:
		return 2
	case health.NoiseOnly:
		return 1
	default:
		return 0
	}
}

// Provider returns the latest snapshot.
type Provider interface {
	Snapshot() Snapshot
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Snapshot

func (f ProviderFunc) Snapshot() Snapshot { return f() }
