// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"strings"
)

// RoutingMatrix maps inputs to outputs: output o is the sum over inputs i
// of m[o][i] * input[i], with linear gains.
type RoutingMatrix [MaxChannels][MaxChannels]float64

// MuteDB and below sets a routing gain to exactly zero.
const MuteDB = -200.0

// IdentityRouting passes every input to the same-numbered output.
func IdentityRouting() RoutingMatrix {
	var m RoutingMatrix
	for i := range MaxChannels {
		m[i][i] = 1
	}
	return m
}

// MonoSumRouting sends the average of all inputs to every output.
func MonoSumRouting() RoutingMatrix {
	var m RoutingMatrix
	g := 1.0 / MaxChannels
	for o := range MaxChannels {
		for i := range MaxChannels {
			m[o][i] = g
		}
	}
	return m
}

// SwapLRRouting exchanges left and right of every stereo pair.
func SwapLRRouting() RoutingMatrix {
	var m RoutingMatrix
	for o := 0; o+1 < MaxChannels; o += 2 {
		m[o][o+1] = 1
		m[o+1][o] = 1
	}
	return m
}

// SubSumRouting folds the first stereo pair to mono on output 0 and passes
// every other input through.
func SubSumRouting() RoutingMatrix {
	m := IdentityRouting()
	m[0][0] = 0.5
	m[0][1] = 0.5
	return m
}

// SetGainDB sets one routing gain from decibels.
func (m *RoutingMatrix) SetGainDB(out, in int, gainDB float64) error {
	if out < 0 || out >= MaxChannels || in < 0 || in >= MaxChannels {
		return fmt.Errorf("%w: [%d][%d]", ErrRoutingRange, out, in)
	}
	if gainDB <= MuteDB {
		m[out][in] = 0
		return nil
	}
	m[out][in] = math.Pow(10, gainDB/20)
	return nil
}

// ApplyFrame routes one frame. in and out must not alias; extra channels
// beyond MaxChannels are ignored and missing inputs read as silence.
func (m *RoutingMatrix) ApplyFrame(in, out []float64) {
	n := min(len(out), MaxChannels)
	for o := range n {
		var sum float64
		for i := range min(len(in), MaxChannels) {
			if g := m[o][i]; g != 0 {
				sum += g * in[i]
			}
		}
		out[o] = sum
	}
}

// Preset names a canned routing.
type Preset int

const (
	PresetIdentity Preset = iota
	PresetMonoSum
	PresetSwapLR
	PresetSubSum
	presetCount
)

var presetNames = [...]string{"identity", "mono_sum", "swap_lr", "sub_sum"}

func (p Preset) String() string {
	if p < 0 || p >= presetCount {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return presetNames[p]
}

// ParsePreset converts a case-insensitive name to a Preset.
func ParsePreset(name string) (Preset, error) {
	n := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	for i, s := range presetNames {
		if s == n {
			return Preset(i), nil
		}
	}
	return PresetIdentity, fmt.Errorf("unknown routing preset %q", name)
}

// Matrix builds the preset's routing.
func (p Preset) Matrix() RoutingMatrix {
	switch p {
	case PresetMonoSum:
		return MonoSumRouting()
	case PresetSwapLR:
		return SwapLRRouting()
	case PresetSubSum:
		return SubSumRouting()
	default:
		return IdentityRouting()
	}
}

// Next cycles through the presets.
func (p Preset) Next() Preset {
	return (p + 1) % presetCount
}

// MatchPreset reports which preset m equals, if any.
func MatchPreset(m RoutingMatrix) (Preset, bool) {
	for p := range presetCount {
		if p.Matrix() == m {
			return p, true
		}
	}
	return 0, false
}
