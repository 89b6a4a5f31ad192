// SPDX-License-Identifier: MIT
/*
Package siggen is the built-in test-signal generator. It replaces the
capture of one or both ADCs with a sine, square or noise signal so the
metering and analysis path can be checked without an input attached.

The signal is rendered into a one-second loop table when the parameters
change; filling a capture block only copies from the table.
*/
package siggen

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/signal"

	"amplifier/internal/sample"
)

var (
	ErrUnknownWaveform = errors.New("siggen: unknown waveform")
	ErrBadFrequency    = errors.New("siggen: frequency out of range")
	ErrBadSampleRate   = errors.New("siggen: sample rate must be positive")
)

// Waveform selects the generated signal.
type Waveform uint8

const (
	Sine Waveform = iota
	Square
	Noise
)

var waveformNames = [...]string{"sine", "square", "noise"}

func (w Waveform) String() string {
	if int(w) < len(waveformNames) {
		return waveformNames[w]
	}
	return fmt.Sprintf("Waveform(%d)", uint8(w))
}

// ParseWaveform maps a name to a Waveform.
func ParseWaveform(name string) (Waveform, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range waveformNames {
		if s == n {
			return Waveform(i), nil
		}
	}
	return Sine, fmt.Errorf("%w: %q", ErrUnknownWaveform, name)
}

// Channel selects which side of the stereo pair carries the signal.
type Channel uint8

const (
	Both Channel = iota
	Left
	Right
)

// Target selects which ADC is replaced.
type Target uint8

const (
	TargetBoth Target = iota
	TargetADC1
	TargetADC2
)

// Covers reports whether the target includes ADC index adc.
func (t Target) Covers(adc int) bool {
	switch t {
	case TargetADC1:
		return adc == 0
	case TargetADC2:
		return adc == 1
	default:
		return adc == 0 || adc == 1
	}
}

// Params describe the generated signal.
type Params struct {
	Waveform      Waveform
	FrequencyHz   float64
	AmplitudeDBFS float64
	Channel       Channel
	Target        Target
	Seed          int64
}

// DefaultParams is a -20 dBFS 1 kHz sine on both channels of both ADCs.
func DefaultParams() Params {
	return Params{
		Waveform:      Sine,
		FrequencyHz:   1000,
		AmplitudeDBFS: -20,
		Seed:          12345,
	}
}

// DBFSToLinear converts a level to a linear amplitude. Levels at or below
// the -96 dBFS floor are silence and levels at or above full scale clamp
// to 1.
func DBFSToLinear(dbfs float64) float64 {
	switch {
	case dbfs <= -96:
		return 0
	case dbfs >= 0:
		return 1
	}
	return core.DBToLinear(dbfs)
}

type table struct {
	params Params
	words  []int32
}

// Generator holds the active loop table. Configure and SetActive may be
// called from any goroutine; Fill is called from the capture path only.
type Generator struct {
	sampleRate float64
	active     atomic.Bool
	tbl        atomic.Pointer[table]
	pos        [2]int
}

// New returns an inactive generator configured with DefaultParams.
func New(sampleRate float64) (*Generator, error) {
	if sampleRate <= 0 {
		return nil, ErrBadSampleRate
	}
	g := &Generator{sampleRate: sampleRate}
	if err := g.Configure(DefaultParams()); err != nil {
		return nil, err
	}
	return g, nil
}

// Configure renders a new loop table for p and publishes it.
func (g *Generator) Configure(p Params) error {
	if p.Waveform > Noise {
		return fmt.Errorf("%w: %d", ErrUnknownWaveform, p.Waveform)
	}
	if p.Waveform != Noise && (p.FrequencyHz <= 0 || p.FrequencyHz >= g.sampleRate/2) {
		return fmt.Errorf("%w: %.1f Hz", ErrBadFrequency, p.FrequencyHz)
	}

	words, err := render(p, g.sampleRate)
	if err != nil {
		return fmt.Errorf("siggen: render %s: %w", p.Waveform, err)
	}
	g.tbl.Store(&table{params: p, words: words})
	return nil
}

// render builds one second of signal. Tone frequencies are rounded to a
// whole number of hertz so the table loops without a discontinuity.
func render(p Params, sampleRate float64) ([]int32, error) {
	n := int(sampleRate)
	gen := signal.NewGeneratorWithOptions(
		[]core.ProcessorOption{core.WithSampleRate(sampleRate)},
		signal.WithSeed(p.Seed),
	)
	amp := DBFSToLinear(p.AmplitudeDBFS)

	var (
		samples []float64
		err     error
	)
	switch p.Waveform {
	case Noise:
		samples, err = gen.WhiteNoise(amp, n)
	default:
		samples, err = gen.Sine(math.Round(p.FrequencyHz), 1, n)
	}
	if err != nil {
		return nil, err
	}

	words := make([]int32, n)
	for i, v := range samples {
		switch p.Waveform {
		case Square:
			if v < 0 {
				v = -amp
			} else {
				v = amp
			}
		case Sine:
			v *= amp
		}
		words[i] = sample.Encode(v)
	}
	return words, nil
}

// Params returns the parameters of the active table.
func (g *Generator) Params() Params {
	return g.tbl.Load().params
}

// SetActive starts or stops signal injection.
func (g *Generator) SetActive(on bool) {
	g.active.Store(on)
}

// Active reports whether the generator is injecting.
func (g *Generator) Active() bool { return g.active.Load() }

// Fill overwrites the interleaved capture words of ADC adc with the
// generated signal when the generator is active and targets that ADC. It
// reports whether the block was replaced. Channels other than the first
// stereo pair are zeroed.
func (g *Generator) Fill(words []int32, channels, adc int) bool {
	if !g.active.Load() || channels <= 0 || adc < 0 || adc >= len(g.pos) {
		return false
	}
	t := g.tbl.Load()
	if !t.params.Target.Covers(adc) {
		return false
	}

	src := t.words
	pos := g.pos[adc] % len(src)
	frames := len(words) / channels
	for f := range frames {
		v := src[pos]
		pos++
		if pos == len(src) {
			pos = 0
		}
		frame := words[f*channels : (f+1)*channels]
		for ch := range frame {
			frame[ch] = 0
		}
		switch t.params.Channel {
		case Left:
			frame[0] = v
		case Right:
			if channels > 1 {
				frame[1] = v
			}
		default:
			frame[0] = v
			if channels > 1 {
				frame[1] = v
			}
		}
	}
	g.pos[adc] = pos
	return true
}
