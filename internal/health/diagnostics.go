// SPDX-License-Identifier: MIT
package health

import (
	"math"
	"sync"
	"time"

	"amplifier/internal/sample"
)

// ClipThreshold is the parsed 24-bit magnitude above which a sample
// counts as clipped.
const ClipThreshold = 8300000

const (
	clipRateAlpha  = 0.1
	dcOffsetAlpha  = 0.01
	noiseFloorRise = 0.01
	noiseFloorFall = 0.001
)

// Diagnostics are the accumulated capture counters of one ADC plus the
// status derived from them. Counters only grow, except ConsecutiveZeros
// which resets on any non-zero block.
type Diagnostics struct {
	I2SReadErrors    uint64    `json:"i2s_read_errors"`
	ZeroByteReads    uint64    `json:"zero_byte_reads"`
	AllZeroBuffers   uint64    `json:"all_zero_buffers"`
	ConsecutiveZeros uint64    `json:"consecutive_zeros"`
	ClippedSamples   uint64    `json:"clipped_samples"`
	TotalBuffersRead uint64    `json:"total_buffers_read"`
	Recoveries       uint64    `json:"recoveries"`
	ClipRate         float64   `json:"clip_rate"`
	DCOffset         float64   `json:"dc_offset"`
	NoiseFloorDBFS   float64   `json:"noise_floor_dbfs"`
	PeakDBFS         float64   `json:"peak_dbfs"`
	LastNonZero      time.Time `json:"last_non_zero"`
	LastRead         time.Time `json:"last_read"`
	Status           Status    `json:"status"`
}

// Monitor owns the Diagnostics of one ADC. Only the capture boundary calls
// its Record methods; telemetry reads snapshots at any time. Every
// recorder recomputes Status.
type Monitor struct {
	th Thresholds

	mu        sync.RWMutex
	d         Diagnostics
	generator bool
}

// NewMonitor returns a monitor with the noise floor at the silence floor.
func NewMonitor(th Thresholds) *Monitor {
	m := &Monitor{th: th}
	m.d.NoiseFloorDBFS = th.SilenceFloorDBFS
	m.d.PeakDBFS = th.SilenceFloorDBFS
	m.d.Status = Derive(m.d, false, th)
	return m
}

// SetGeneratorActive tells the monitor whether a test signal is driving
// the input. While true, clipped samples are not counted, the clip rate
// is held at zero and the noise floor is frozen.
func (m *Monitor) SetGeneratorActive(active bool) {
	m.mu.Lock()
	m.generator = active
	if active {
		m.d.ClipRate = 0
	}
	m.derive()
	m.mu.Unlock()
}

// RecordReadError counts a failed transport read.
func (m *Monitor) RecordReadError() {
	m.mu.Lock()
	m.d.I2SReadErrors++
	m.derive()
	m.mu.Unlock()
}

// RecordZeroByteRead counts a read that returned no data.
func (m *Monitor) RecordZeroByteRead() {
	m.mu.Lock()
	m.d.ZeroByteReads++
	m.derive()
	m.mu.Unlock()
}

// RecordRecovery counts a transport reinitialization.
func (m *Monitor) RecordRecovery() {
	m.mu.Lock()
	m.d.Recoveries++
	m.derive()
	m.mu.Unlock()
}

// RecordMissingBlock accounts for a period in which the ADC delivered
// nothing, as if it had delivered an all-zero block.
func (m *Monitor) RecordMissingBlock(now time.Time) {
	m.mu.Lock()
	m.d.AllZeroBuffers++
	m.d.ConsecutiveZeros++
	m.d.LastRead = now
	m.derive()
	m.mu.Unlock()
}

// RecordBlock scans one interleaved block of capture words for zero
// runs, clipping and DC offset. It reports whether the block was all
// zero so the caller can take the silence fast path.
func (m *Monitor) RecordBlock(words []int32, now time.Time) (allZero bool) {
	allZero = true
	var (
		clipped uint64
		dcSum   float64
	)
	for _, w := range words {
		v := sample.Parse(w)
		if v != 0 {
			allZero = false
		}
		if v > ClipThreshold || v < -ClipThreshold {
			clipped++
		}
		dcSum += float64(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.d.TotalBuffersRead++
	m.d.LastRead = now
	if allZero {
		m.d.AllZeroBuffers++
		m.d.ConsecutiveZeros++
	} else {
		m.d.ConsecutiveZeros = 0
		m.d.LastNonZero = now
	}
	if !m.generator {
		m.d.ClippedSamples += clipped
	}

	if n := len(words); n > 0 {
		if !m.generator {
			rate := float64(clipped) / float64(n)
			m.d.ClipRate = m.d.ClipRate*(1-clipRateAlpha) + rate*clipRateAlpha
		}
		mean := dcSum / float64(n) / sample.MaxMagnitude
		m.d.DCOffset += (mean - m.d.DCOffset) * dcOffsetAlpha
	}
	m.derive()
	return allZero
}

// RecordLevel folds the block level into the noise-floor tracker: fast
// rise, slow fall. It is frozen while a generator is active.
func (m *Monitor) RecordLevel(dbfs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generator {
		return
	}
	nf := m.d.NoiseFloorDBFS
	if dbfs > nf {
		nf += (dbfs - nf) * noiseFloorRise
	} else {
		nf += (dbfs - nf) * noiseFloorFall
	}
	m.d.NoiseFloorDBFS = nf
	m.d.PeakDBFS = math.Max(m.d.PeakDBFS, dbfs)
	m.derive()
}

// RecordSilence pulls the noise floor slowly toward the silence floor.
func (m *Monitor) RecordSilence() {
	m.mu.Lock()
	defer m.mu.Unlock()
	floor := m.th.SilenceFloorDBFS
	m.d.NoiseFloorDBFS += (floor - m.d.NoiseFloorDBFS) * noiseFloorFall
	m.derive()
}

func (m *Monitor) derive() {
	m.d.Status = Derive(m.d, m.generator, m.th)
}

// Diagnostics returns a copy of the current counters.
func (m *Monitor) Diagnostics() Diagnostics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d
}

// Status returns the current derived status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.Status
}
