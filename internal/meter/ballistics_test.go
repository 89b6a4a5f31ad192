// SPDX-License-Identifier: MIT
package meter

import (
	"math"
	"testing"
	"time"
)

func TestUpdateVUDegenerateDt(t *testing.T) {
	for _, dt := range []float64{0, -5} {
		if got := UpdateVU(0.3, 1, dt); got != 0.3 {
			t.Errorf("UpdateVU(dt=%v) = %v, want unchanged 0.3", dt, got)
		}
	}
}

func TestUpdateVUConverges(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		target float64
	}{
		{"attack", 0, 0.8},
		{"decay", 0.8, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vu := tt.start
			const dt = 5.0
			steps := int(5 * DefaultBallistics.VUAttack / dt)
			for range steps {
				next := UpdateVU(vu, tt.target, dt)
				// Monotonic approach without overshoot.
				if math.Abs(tt.target-next) > math.Abs(tt.target-vu) {
					t.Fatalf("moved away from target: %v -> %v", vu, next)
				}
				if (tt.target-vu)*(tt.target-next) < 0 {
					t.Fatalf("overshoot: %v -> %v", vu, next)
				}
				vu = next
			}
			span := math.Abs(tt.target - tt.start)
			if math.Abs(tt.target-vu) > 0.05*span {
				t.Errorf("after 5 tau vu = %v, want within 5%% of %v", vu, tt.target)
			}
		})
	}
}

func TestUpdateVUAsymmetric(t *testing.T) {
	b := Ballistics{VUAttack: 10, VUDecay: 1000}
	up := b.UpdateVU(0, 1, 10)
	down := 1 - b.UpdateVU(1, 0, 10)
	if up <= down {
		t.Errorf("attack step %v should exceed decay step %v", up, down)
	}
}

func TestUpdatePeakHold(t *testing.T) {
	t0 := time.Unix(1000, 0)

	peak, hold := UpdatePeakHold(0.2, 0.7, t0.Add(-time.Hour), t0, 10)
	if peak != 0.7 || !hold.Equal(t0) {
		t.Fatalf("instant attack: got %v @ %v", peak, hold)
	}

	// Quieter input inside the hold window never moves the peak.
	now := t0
	for _, v := range []float64{0.6, 0.5, 0.5, 0.1, 0} {
		now = now.Add(100 * time.Millisecond)
		p, h := UpdatePeakHold(peak, v, hold, now, 100)
		if p != peak || !h.Equal(hold) {
			t.Fatalf("peak moved inside hold window: %v -> %v", peak, p)
		}
	}

	// After the hold window it decays but never below the input.
	now = t0.Add(2500 * time.Millisecond)
	p, _ := UpdatePeakHold(peak, 0.1, hold, now, 100)
	if p >= peak || p < 0.1 {
		t.Errorf("post-hold decay = %v, want in [0.1, %v)", p, peak)
	}
	p, _ = UpdatePeakHold(peak, 0.69, hold, now, 1000)
	if p != 0.69 {
		t.Errorf("decay floored at input = %v, want 0.69", p)
	}
}

// The hold window restarts from the latest new peak, not from the first.
func TestUpdatePeakHoldRestartsFromLastPeak(t *testing.T) {
	t0 := time.Unix(0, 0)
	peak, hold := UpdatePeakHold(0, 0.5, time.Time{}, t0, 10)
	peak, hold = UpdatePeakHold(peak, 0.6, hold, t0.Add(1500*time.Millisecond), 10)

	p, _ := UpdatePeakHold(peak, 0.1, hold, t0.Add(2500*time.Millisecond), 10)
	if p != 0.6 {
		t.Errorf("peak decayed %v before hold from last peak expired", p)
	}
}

func TestChannelMeter(t *testing.T) {
	m := NewChannelMeter(DefaultBallistics)
	if m.State().DBFS != DBFSFloor {
		t.Fatalf("initial dBFS = %v", m.State().DBFS)
	}

	now := time.Unix(0, 0)
	s := m.Update(0.5, now, 5)
	if s.Peak != 0.5 || s.VU <= 0 || s.VU >= 0.5 {
		t.Errorf("after update: %+v", s)
	}

	for range 1000 {
		now = now.Add(10 * time.Millisecond)
		s = m.Decay(now, 10)
	}
	if s.DBFS != DBFSFloor || s.VU > 1e-6 || s.Peak > 1e-6 {
		t.Errorf("after long silence: %+v", s)
	}

	m.Reset()
	if m.State().Peak != 0 {
		t.Error("Reset did not clear the peak")
	}
}
