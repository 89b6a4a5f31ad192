// SPDX-License-Identifier: MIT
package health

import (
	"testing"
	"time"

	"amplifier/internal/sample"
)

func TestDerivePriority(t *testing.T) {
	th := DefaultThresholds()
	quiet := -96.0

	tests := []struct {
		name      string
		d         Diagnostics
		generator bool
		want      Status
	}{
		{"clean", Diagnostics{NoiseFloorDBFS: -60}, false, OK},
		{"at silence floor", Diagnostics{NoiseFloorDBFS: quiet}, false, OK},
		{"read errors at threshold", Diagnostics{I2SReadErrors: 10, NoiseFloorDBFS: quiet}, false, OK},
		{"read errors", Diagnostics{I2SReadErrors: 11}, false, I2SError},
		{"zeros", Diagnostics{ConsecutiveZeros: 101}, false, NoData},
		{"read errors beat zeros", Diagnostics{I2SReadErrors: 11, ConsecutiveZeros: 500}, false, I2SError},
		{"zeros beat clipping", Diagnostics{ConsecutiveZeros: 101, ClippedSamples: 3}, false, NoData},
		{"clipping", Diagnostics{ClippedSamples: 1, NoiseFloorDBFS: -80}, false, Clipping},
		{"clipping masked by generator", Diagnostics{ClippedSamples: 1, NoiseFloorDBFS: -60}, true, OK},
		{"hw fault", Diagnostics{ClipRate: 0.31, ClippedSamples: 900}, false, HWFault},
		{"clip rate at hw threshold", Diagnostics{ClipRate: 0.3, ClippedSamples: 900}, false, Clipping},
		{"zeros beat hw fault", Diagnostics{ConsecutiveZeros: 101, ClipRate: 0.9}, false, NoData},
		{"hw fault masked by generator", Diagnostics{ClipRate: 0.9, NoiseFloorDBFS: -60}, true, OK},
		{"noise only", Diagnostics{NoiseFloorDBFS: -80}, false, NoiseOnly},
		{"noise ceiling exclusive", Diagnostics{NoiseFloorDBFS: -75}, false, OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.d, tt.generator, th); got != tt.want {
				t.Errorf("Derive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		OK: "OK", NoData: "NO_DATA", NoiseOnly: "NOISE_ONLY",
		Clipping: "CLIPPING", I2SError: "I2S_ERROR", HWFault: "HW_FAULT", Status(42): "Status(42)",
	} {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestMonitorZeroRun(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	now := time.Unix(0, 0)
	zeros := make([]int32, 64)

	for range 101 {
		if !m.RecordBlock(zeros, now) {
			t.Fatal("all-zero block not reported as zero")
		}
	}
	if m.Status() != NoData {
		t.Fatalf("status after 101 zero blocks = %v", m.Status())
	}

	signal := []int32{sample.Encode(0.1), sample.Encode(-0.1)}
	if m.RecordBlock(signal, now.Add(time.Second)) {
		t.Fatal("non-zero block reported as zero")
	}
	d := m.Diagnostics()
	if d.ConsecutiveZeros != 0 || d.AllZeroBuffers != 101 || d.TotalBuffersRead != 102 {
		t.Errorf("counters = %+v", d)
	}
	if !d.LastNonZero.Equal(now.Add(time.Second)) {
		t.Errorf("LastNonZero = %v", d.LastNonZero)
	}
	if m.Status() != OK {
		t.Errorf("status after signal = %v", m.Status())
	}
}

func TestMonitorClipping(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	hot := []int32{sample.Encode(1), sample.Encode(-1), sample.Encode(0.5), 0}

	m.RecordBlock(hot, time.Now())
	d := m.Diagnostics()
	if d.ClippedSamples != 2 {
		t.Errorf("ClippedSamples = %d, want 2", d.ClippedSamples)
	}
	if d.ClipRate <= 0 {
		t.Errorf("ClipRate = %v, want > 0", d.ClipRate)
	}
	if d.Status != Clipping {
		t.Errorf("status = %v, want CLIPPING", d.Status)
	}
}

func TestMonitorGeneratorClippingNotLatched(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	now := time.Unix(0, 0)

	full := make([]int32, 256)
	for i := range full {
		full[i] = sample.Encode(1)
	}
	clean := make([]int32, 256)
	for i := range clean {
		clean[i] = sample.Encode(0.1)
	}

	m.SetGeneratorActive(true)
	for range 50 {
		m.RecordBlock(full, now)
	}
	d := m.Diagnostics()
	if d.Status != OK || d.ClippedSamples != 0 || d.ClipRate != 0 {
		t.Fatalf("while generator active: status %v clipped %d rate %v", d.Status, d.ClippedSamples, d.ClipRate)
	}

	m.SetGeneratorActive(false)
	for range 1000 {
		m.RecordBlock(clean, now)
		m.RecordLevel(-20)
	}
	d = m.Diagnostics()
	if d.Status == Clipping || d.Status == HWFault {
		t.Errorf("status after generator stopped = %v", d.Status)
	}
	if d.Status != OK {
		t.Errorf("status = %v, want OK", d.Status)
	}
	if d.ClippedSamples != 0 {
		t.Errorf("ClippedSamples = %d, want 0", d.ClippedSamples)
	}
}

func TestMonitorHWFault(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	now := time.Unix(0, 0)
	// Half the samples pinned at full scale, as with a floating data line.
	floating := make([]int32, 64)
	for i := range floating {
		if i%2 == 0 {
			floating[i] = sample.Encode(-1)
		} else {
			floating[i] = sample.Encode(0.01)
		}
	}

	for range 5 {
		m.RecordBlock(floating, now)
	}
	if m.Status() != Clipping {
		t.Fatalf("status after a few blocks = %v, want CLIPPING", m.Status())
	}
	for range 100 {
		m.RecordBlock(floating, now)
	}
	if d := m.Diagnostics(); d.Status != HWFault || d.ClipRate < 0.45 {
		t.Errorf("status %v clip rate %v, want HW_FAULT near 0.5", d.Status, d.ClipRate)
	}

	// A generator resets the rate and masks the fault.
	m.SetGeneratorActive(true)
	if d := m.Diagnostics(); d.Status != OK || d.ClipRate != 0 {
		t.Errorf("with generator: status %v clip rate %v", d.Status, d.ClipRate)
	}
}

func TestMonitorReadErrors(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	for range 11 {
		m.RecordReadError()
	}
	m.RecordZeroByteRead()
	m.RecordRecovery()
	for range 200 {
		m.RecordMissingBlock(time.Now())
	}
	d := m.Diagnostics()
	if d.Status != I2SError {
		t.Errorf("status = %v, want I2S_ERROR", d.Status)
	}
	if d.ZeroByteReads != 1 || d.Recoveries != 1 || d.ConsecutiveZeros != 200 {
		t.Errorf("counters = %+v", d)
	}
}

func TestMonitorNoiseFloor(t *testing.T) {
	m := NewMonitor(DefaultThresholds())

	for range 2000 {
		m.RecordLevel(-80)
	}
	d := m.Diagnostics()
	if d.NoiseFloorDBFS < -81 || d.NoiseFloorDBFS > -79 {
		t.Fatalf("noise floor = %v, want ~-80", d.NoiseFloorDBFS)
	}
	if d.Status != NoiseOnly || d.PeakDBFS != -80 {
		t.Errorf("status %v peak %v", d.Status, d.PeakDBFS)
	}

	// Frozen while a generator runs.
	m.SetGeneratorActive(true)
	m.RecordLevel(0)
	if got := m.Diagnostics().NoiseFloorDBFS; got != d.NoiseFloorDBFS {
		t.Errorf("noise floor moved to %v while generator active", got)
	}
	m.SetGeneratorActive(false)

	// Falls slower than it rises.
	before := m.Diagnostics().NoiseFloorDBFS
	m.RecordLevel(before - 10)
	fall := before - m.Diagnostics().NoiseFloorDBFS
	m.RecordLevel(before + 10)
	rise := m.Diagnostics().NoiseFloorDBFS - (before - fall)
	if rise <= fall {
		t.Errorf("rise %v should exceed fall %v", rise, fall)
	}

	m.RecordSilence()
	if m.Diagnostics().NoiseFloorDBFS >= before+10 {
		t.Error("RecordSilence did not pull the floor down")
	}
}

func TestMonitorDCOffset(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	block := make([]int32, 32)
	for i := range block {
		block[i] = sample.Encode(0.2)
	}
	for range 1000 {
		m.RecordBlock(block, time.Now())
	}
	if got := m.Diagnostics().DCOffset; got < 0.19 || got > 0.21 {
		t.Errorf("DCOffset = %v, want ~0.2", got)
	}
}
