// SPDX-License-Identifier: MIT
/*
Package usbprio arbitrates the output routing between the analog inputs
and a USB audio source.

When the feature is enabled and USB streaming persists past a debounce
interval, the current routing is saved and replaced with one that feeds
the USB pair to outputs 0 and 1. When streaming stops for longer than a
hold-off interval the saved routing is restored. Brief dropouts inside
the hold-off return straight to the USB routing without saving again.

Step is the pure decision function; Arbiter applies its effects to a
dsp.Store.
*/
package usbprio

import (
	"fmt"
	"time"

	"amplifier/internal/dsp"
)

// State is the arbiter state.
type State uint8

const (
	Idle State = iota
	Watching
	Active
	Reverting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Watching:
		return "WATCHING"
	case Active:
		return "ACTIVE"
	case Reverting:
		return "REVERTING"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MarshalText lets State appear by name in JSON telemetry.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Timing holds the debounce and hold-off intervals.
type Timing struct {
	Debounce time.Duration
	HoldOff  time.Duration
}

// DefaultTiming is 50 ms debounce and 500 ms hold-off.
var DefaultTiming = Timing{
	Debounce: 50 * time.Millisecond,
	HoldOff:  500 * time.Millisecond,
}

// Result is the outcome of one Step.
type Result struct {
	Next            State
	SaveMatrix      bool
	ApplyUSBRouting bool
	RestoreMatrix   bool
}

// Step computes the next state and its effects. It is pure: the same
// inputs always give the same Result. A zero streamStart or streamStop
// means that edge has never been seen.
func Step(cur State, enabled, streaming bool, now, streamStart, streamStop time.Time, t Timing) Result {
	res := Result{Next: cur}

	if !enabled {
		res.Next = Idle
		res.RestoreMatrix = cur == Active || cur == Reverting
		return res
	}

	switch cur {
	case Idle:
		res.Next = Watching
	case Watching:
		if streaming && !streamStart.IsZero() && now.Sub(streamStart) >= t.Debounce {
			res.Next = Active
			res.SaveMatrix = true
			res.ApplyUSBRouting = true
		}
	case Active:
		if !streaming {
			res.Next = Reverting
		}
	case Reverting:
		switch {
		case streaming:
			res.Next = Active
		case !streamStop.IsZero() && now.Sub(streamStop) >= t.HoldOff:
			res.Next = Watching
			res.RestoreMatrix = true
		}
	}
	return res
}

// USB input channels in the routing matrix.
const (
	USBLeft  = 4
	USBRight = 5
)

// BuildUSBRouting feeds the USB pair to outputs 0 and 1. Every other
// output passes its own input through so metering keeps working.
func BuildUSBRouting(left, right int) dsp.RoutingMatrix {
	var m dsp.RoutingMatrix
	if left >= 0 && left < dsp.MaxChannels {
		m[0][left] = 1
	}
	if right >= 0 && right < dsp.MaxChannels {
		m[1][right] = 1
	}
	for i := 2; i < dsp.MaxChannels; i++ {
		m[i][i] = 1
	}
	return m
}
