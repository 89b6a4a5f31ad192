// SPDX-License-Identifier: MIT
package meter

import (
	"math"
	"time"
)

// Ballistics holds the meter time constants in milliseconds.
type Ballistics struct {
	VUAttack  float64
	VUDecay   float64
	PeakHold  float64
	PeakDecay float64
}

// DefaultBallistics matches classic hardware VU/PPM behavior.
var DefaultBallistics = Ballistics{
	VUAttack:  300,
	VUDecay:   300,
	PeakHold:  2000,
	PeakDecay: 300,
}

// UpdateVU moves prev toward target with a one-pole filter whose time
// constant depends on direction. dtMs <= 0 returns prev unchanged.
func (b Ballistics) UpdateVU(prev, target, dtMs float64) float64 {
	if dtMs <= 0 {
		return prev
	}
	tau := b.VUDecay
	if target > prev {
		tau = b.VUAttack
	}
	if tau <= 0 {
		return target
	}
	coeff := 1 - math.Exp(-dtMs/tau)
	return prev + coeff*(target-prev)
}

// UpdatePeakHold tracks an instant-attack, held, exponentially decaying
// peak. The hold window is measured from the last new peak. After it
// expires the peak decays toward v but never below it.
func (b Ballistics) UpdatePeakHold(peak, v float64, holdStart, now time.Time, dtMs float64) (float64, time.Time) {
	if v >= peak {
		return v, now
	}
	if now.Sub(holdStart) < time.Duration(b.PeakHold*float64(time.Millisecond)) {
		return peak, holdStart
	}
	if dtMs <= 0 {
		return peak, holdStart
	}
	if b.PeakDecay <= 0 {
		return v, holdStart
	}
	coeff := 1 - math.Exp(-dtMs/b.PeakDecay)
	decayed := peak * (1 - coeff)
	if decayed < v {
		decayed = v
	}
	return decayed, holdStart
}

// UpdateVU applies DefaultBallistics.
func UpdateVU(prev, target, dtMs float64) float64 {
	return DefaultBallistics.UpdateVU(prev, target, dtMs)
}

// UpdatePeakHold applies DefaultBallistics.
func UpdatePeakHold(peak, v float64, holdStart, now time.Time, dtMs float64) (float64, time.Time) {
	return DefaultBallistics.UpdatePeakHold(peak, v, holdStart, now, dtMs)
}

// State is the published meter state of one channel.
type State struct {
	RMS           float64   `json:"rms"`
	DBFS          float64   `json:"dbfs"`
	VU            float64   `json:"vu"`
	Peak          float64   `json:"peak"`
	PeakHoldStart time.Time `json:"-"`
}

// ChannelMeter owns the ballistic state of one channel. It is not safe
// for concurrent use; the capture pipeline is its only writer.
type ChannelMeter struct {
	Ballistics Ballistics
	state      State
}

// NewChannelMeter returns a meter at the dBFS floor.
func NewChannelMeter(b Ballistics) *ChannelMeter {
	return &ChannelMeter{
		Ballistics: b,
		state:      State{DBFS: DBFSFloor},
	}
}

// Update feeds the RMS of the latest block.
func (m *ChannelMeter) Update(rms float64, now time.Time, dtMs float64) State {
	m.state.RMS = rms
	m.state.DBFS = RMSToDBFS(rms)
	m.state.VU = m.Ballistics.UpdateVU(m.state.VU, rms, dtMs)
	m.state.Peak, m.state.PeakHoldStart = m.Ballistics.UpdatePeakHold(
		m.state.Peak, rms, m.state.PeakHoldStart, now, dtMs)
	return m.state
}

// Decay is the silence fast path: the block is known to be all zero so
// the meter only falls toward zero.
func (m *ChannelMeter) Decay(now time.Time, dtMs float64) State {
	return m.Update(0, now, dtMs)
}

// State returns the last computed state.
func (m *ChannelMeter) State() State {
	return m.state
}

// Reset returns the meter to the dBFS floor.
func (m *ChannelMeter) Reset() {
	m.state = State{DBFS: DBFSFloor}
}
