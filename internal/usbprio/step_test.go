// SPDX-License-Identifier: MIT
package usbprio

import (
	"testing"
	"time"

	"amplifier/internal/dsp"
)

func TestStep(t *testing.T) {
	base := time.Unix(1000, 0)
	ms := func(n int) time.Time { return base.Add(time.Duration(n) * time.Millisecond) }
	var never time.Time

	tests := []struct {
		name      string
		cur       State
		enabled   bool
		streaming bool
		now       time.Time
		start     time.Time
		stop      time.Time
		want      Result
	}{
		{"disabled idle", Idle, false, true, ms(0), never, never, Result{Next: Idle}},
		{"disabled watching", Watching, false, true, ms(0), never, never, Result{Next: Idle}},
		{"disabled active restores", Active, false, true, ms(0), never, never, Result{Next: Idle, RestoreMatrix: true}},
		{"disabled reverting restores", Reverting, false, false, ms(0), never, never, Result{Next: Idle, RestoreMatrix: true}},
		{"idle to watching", Idle, true, false, ms(0), never, never, Result{Next: Watching}},
		{"watching no stream", Watching, true, false, ms(100), never, never, Result{Next: Watching}},
		{"watching stream never started", Watching, true, true, ms(100), never, never, Result{Next: Watching}},
		{"watching inside debounce", Watching, true, true, ms(49), ms(0), never, Result{Next: Watching}},
		{"watching debounce elapsed", Watching, true, true, ms(50), ms(0), never, Result{Next: Active, SaveMatrix: true, ApplyUSBRouting: true}},
		{"active streaming", Active, true, true, ms(500), ms(0), never, Result{Next: Active}},
		{"active stops", Active, true, false, ms(500), ms(0), ms(500), Result{Next: Reverting}},
		{"reverting resumes", Reverting, true, true, ms(600), ms(550), ms(500), Result{Next: Active}},
		{"reverting inside hold-off", Reverting, true, false, ms(999), ms(0), ms(500), Result{Next: Reverting}},
		{"reverting hold-off elapsed", Reverting, true, false, ms(1000), ms(0), ms(500), Result{Next: Watching, RestoreMatrix: true}},
		{"reverting stop never seen", Reverting, true, false, ms(5000), ms(0), never, Result{Next: Reverting}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Step(tt.cur, tt.enabled, tt.streaming, tt.now, tt.start, tt.stop, DefaultTiming)
			if got != tt.want {
				t.Errorf("Step() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStepIsPure(t *testing.T) {
	now := time.Unix(10, 0)
	start := now.Add(-time.Second)
	a := Step(Watching, true, true, now, start, time.Time{}, DefaultTiming)
	b := Step(Watching, true, true, now, start, time.Time{}, DefaultTiming)
	if a != b {
		t.Errorf("Step not deterministic: %+v vs %+v", a, b)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "IDLE", Watching: "WATCHING", Active: "ACTIVE", Reverting: "REVERTING"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if got := State(9).String(); got != "State(9)" {
		t.Errorf("unknown state = %q", got)
	}
}

func TestBuildUSBRouting(t *testing.T) {
	m := BuildUSBRouting(USBLeft, USBRight)
	for out := 0; out < dsp.MaxChannels; out++ {
		for in := 0; in < dsp.MaxChannels; in++ {
			want := 0.0
			switch {
			case out == 0 && in == USBLeft, out == 1 && in == USBRight:
				want = 1
			case out >= 2 && out == in:
				want = 1
			}
			if m[out][in] != want {
				t.Errorf("m[%d][%d] = %v, want %v", out, in, m[out][in], want)
			}
		}
	}
}
