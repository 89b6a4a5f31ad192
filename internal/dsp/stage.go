// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// StageType identifies the processing performed by a stage.
type StageType uint8

const (
	LPF StageType = iota
	HPF
	BPF
	Notch
	PEQ
	LowShelf
	HighShelf
	Allpass
	Custom
	Limiter
	GainStage
	stageTypeCount
)

var stageTypeNames = [...]string{
	LPF:       "lpf",
	HPF:       "hpf",
	BPF:       "bpf",
	Notch:     "notch",
	PEQ:       "peq",
	LowShelf:  "low_shelf",
	HighShelf: "high_shelf",
	Allpass:   "allpass",
	Custom:    "custom",
	Limiter:   "limiter",
	GainStage: "gain",
}

func (t StageType) String() string {
	if t >= stageTypeCount {
		return fmt.Sprintf("StageType(%d)", uint8(t))
	}
	return stageTypeNames[t]
}

// ParseStageType converts a case-insensitive name to a StageType.
func ParseStageType(name string) (StageType, error) {
	n := strings.ToLower(name)
	for i, s := range stageTypeNames {
		if s == n {
			return StageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage type %q", name)
}

// IsBiquad reports whether the type is one of the RBJ designs.
func (t StageType) IsBiquad() bool { return t <= Allpass }

// DefaultQ is the Butterworth Q used when a stage has none.
const DefaultQ = 0.707

// Design frequencies are kept strictly inside (0, Nyquist).
const (
	minNormalizedFreq = 1e-4
	maxNormalizedFreq = 0.4999
)

// Params are the per-variant stage parameters. Variants are immutable
// values; change a stage by replacing its Params.
type Params interface {
	Type() StageType
	recompute(sampleRate float64) Params
}

// Biquad is an RBJ cookbook filter. GainDB is used by PEQ and shelves.
// Coeffs is derived by recompute.
type Biquad struct {
	Kind      StageType
	Frequency float64
	GainDB    float64
	Q         float64
	Coeffs    biquad.Coefficients
}

// CustomBiquad carries user supplied coefficients.
type CustomBiquad struct {
	Coeffs biquad.Coefficients
}

// Gain is a static gain stage.
type Gain struct {
	GainDB float64
	Linear float64
}

// LimiterParams configure a peak limiter.
type LimiterParams struct {
	ThresholdDB float64
	AttackMs    float64
	ReleaseMs   float64
	Ratio       float64
}

func (b Biquad) Type() StageType { return b.Kind }

func (CustomBiquad) Type() StageType { return Custom }

func (Gain) Type() StageType { return GainStage }

func (LimiterParams) Type() StageType { return Limiter }

func (c CustomBiquad) recompute(float64) Params { return c }

func (l LimiterParams) recompute(float64) Params { return l }

func (g Gain) recompute(float64) Params {
	g.Linear = core.DBToLinear(g.GainDB)
	return g
}

var unity = biquad.Coefficients{B0: 1}

func (b Biquad) recompute(sampleRate float64) Params {
	if sampleRate <= 0 {
		b.Coeffs = unity
		return b
	}
	f := min(max(b.Frequency, minNormalizedFreq*sampleRate), maxNormalizedFreq*sampleRate)
	q := b.Q
	if q <= 0 {
		q = DefaultQ
	}

	switch b.Kind {
	case LPF:
		b.Coeffs = design.Lowpass(f, q, sampleRate)
	case HPF:
		b.Coeffs = design.Highpass(f, q, sampleRate)
	case BPF:
		b.Coeffs = design.Bandpass(f, q, sampleRate)
	case Notch:
		b.Coeffs = design.Notch(f, q, sampleRate)
	case PEQ:
		b.Coeffs = design.Peak(f, b.GainDB, q, sampleRate)
	case LowShelf:
		b.Coeffs = design.LowShelf(f, b.GainDB, q, sampleRate)
	case HighShelf:
		b.Coeffs = design.HighShelf(f, b.GainDB, q, sampleRate)
	case Allpass:
		b.Coeffs = design.Allpass(f, q, sampleRate)
	default:
		b.Coeffs = unity
	}
	return b
}

// DefaultParams returns the initial parameters of a new stage of type t.
func DefaultParams(t StageType) (Params, error) {
	switch {
	case t.IsBiquad():
		return Biquad{Kind: t, Frequency: 1000, Q: DefaultQ, Coeffs: unity}, nil
	case t == Custom:
		return CustomBiquad{Coeffs: unity}, nil
	case t == Limiter:
		return LimiterParams{ThresholdDB: 0, AttackMs: 5, ReleaseMs: 50, Ratio: 20}, nil
	case t == GainStage:
		return Gain{Linear: 1}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrStageType, t)
	}
}

func validParams(p Params) bool {
	if p == nil {
		return false
	}
	if b, ok := p.(Biquad); ok {
		return b.Kind.IsBiquad()
	}
	return p.Type() < stageTypeCount
}

// MaxLabelLen bounds stage labels.
const MaxLabelLen = 15

// Stage is one element of a channel's processing chain.
type Stage struct {
	Enabled bool
	Label   string
	Params  Params
}

// Coefficients returns the biquad coefficients of biquad-backed stages.
func (s Stage) Coefficients() (biquad.Coefficients, bool) {
	switch p := s.Params.(type) {
	case Biquad:
		return p.Coeffs, true
	case CustomBiquad:
		return p.Coeffs, true
	}
	return biquad.Coefficients{}, false
}

// Type returns the stage type, or Custom for an empty stage.
func (s Stage) Type() StageType {
	if s.Params == nil {
		return Custom
	}
	return s.Params.Type()
}
