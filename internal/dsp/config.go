// SPDX-License-Identifier: MIT
/*
Package dsp holds the DSP configuration read by the audio path: per
channel stage chains with derived biquad coefficients and the output
routing matrix, plus the double-buffered Store that lets settings change
while audio keeps flowing.

Applying filters to samples is not done here. This package owns the
configuration and the discipline for changing it.
*/
package dsp

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxChannels covers ADC1 L/R, ADC2 L/R and USB L/R.
	MaxChannels = 6
	// MaxStages is the per-channel stage capacity.
	MaxStages = 24
	// DefaultSampleRate is used by a zero Config.
	DefaultSampleRate = 48000
)

var (
	ErrChannelRange = errors.New("dsp: channel out of range")
	ErrStageRange   = errors.New("dsp: stage index out of range")
	ErrStageFull    = errors.New("dsp: channel stage list is full")
	ErrBadOrder     = errors.New("dsp: order is not a permutation of the stages")
	ErrStageType    = errors.New("dsp: unsupported stage type")
	ErrRoutingRange = errors.New("dsp: routing index out of range")
)

// Channel is the processing chain of one channel. Only Stages[:StageCount]
// is meaningful.
type Channel struct {
	Bypass     bool
	StageCount int
	Stages     [MaxStages]Stage
}

// Active returns the populated stages. The slice aliases the channel.
func (c *Channel) Active() []Stage {
	return c.Stages[:c.StageCount]
}

// ResponseDB is the magnitude response in dB of the enabled biquad and
// gain stages at freq. A bypassed channel is flat.
func (c *Channel) ResponseDB(freq, sampleRate float64) float64 {
	if c.Bypass || sampleRate <= 0 {
		return 0
	}
	var db float64
	for _, s := range c.Active() {
		if !s.Enabled {
			continue
		}
		if g, ok := s.Params.(Gain); ok {
			db += g.GainDB
			continue
		}
		if coeffs, ok := s.Coefficients(); ok {
			db += coeffs.MagnitudeDB(freq, sampleRate)
		}
	}
	if math.IsNaN(db) {
		return math.Inf(-1)
	}
	return db
}

// Config is one complete DSP configuration. It is a plain value: assigning
// a Config copies every channel, stage and routing gain, so the two store
// slots never share mutable state.
type Config struct {
	GlobalBypass bool
	SampleRate   float64
	Channels     [MaxChannels]Channel
	Routing      RoutingMatrix
}

// NewConfig returns an empty configuration with identity routing.
func NewConfig(sampleRate float64) Config {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return Config{SampleRate: sampleRate, Routing: IdentityRouting()}
}

func (c *Config) channel(ch int) (*Channel, error) {
	if ch < 0 || ch >= MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrChannelRange, ch)
	}
	return &c.Channels[ch], nil
}

func (c *Config) stage(ch, idx int) (*Stage, error) {
	chn, err := c.channel(ch)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= chn.StageCount {
		return nil, fmt.Errorf("%w: channel %d stage %d", ErrStageRange, ch, idx)
	}
	return &chn.Stages[idx], nil
}

// AddStage inserts an enabled stage at pos and returns its index. A pos
// outside [0, StageCount] appends.
func (c *Config) AddStage(ch int, p Params, pos int, label string) (int, error) {
	chn, err := c.channel(ch)
	if err != nil {
		return -1, err
	}
	if chn.StageCount >= MaxStages {
		return -1, fmt.Errorf("%w: channel %d", ErrStageFull, ch)
	}
	if !validParams(p) {
		return -1, ErrStageType
	}
	if pos < 0 || pos > chn.StageCount {
		pos = chn.StageCount
	}

	copy(chn.Stages[pos+1:chn.StageCount+1], chn.Stages[pos:chn.StageCount])
	chn.Stages[pos] = Stage{
		Enabled: true,
		Label:   truncateLabel(label),
		Params:  p.recompute(c.SampleRate),
	}
	chn.StageCount++
	return pos, nil
}

// RemoveStage deletes the stage at idx, shifting later stages down.
func (c *Config) RemoveStage(ch, idx int) error {
	if _, err := c.stage(ch, idx); err != nil {
		return err
	}
	chn := &c.Channels[ch]
	copy(chn.Stages[idx:], chn.Stages[idx+1:chn.StageCount])
	chn.StageCount--
	chn.Stages[chn.StageCount] = Stage{}
	return nil
}

// ReorderStages permutes a channel's stages so that new position i holds
// old stage order[i]. order must be a permutation of [0, StageCount).
func (c *Config) ReorderStages(ch int, order []int) error {
	chn, err := c.channel(ch)
	if err != nil {
		return err
	}
	if len(order) != chn.StageCount {
		return fmt.Errorf("%w: got %d indices for %d stages", ErrBadOrder, len(order), chn.StageCount)
	}
	var used [MaxStages]bool
	for _, o := range order {
		if o < 0 || o >= chn.StageCount || used[o] {
			return fmt.Errorf("%w: %v", ErrBadOrder, order)
		}
		used[o] = true
	}

	old := chn.Stages
	for i, o := range order {
		chn.Stages[i] = old[o]
	}
	return nil
}

// SetStageEnabled toggles a stage without removing it.
func (c *Config) SetStageEnabled(ch, idx int, enabled bool) error {
	s, err := c.stage(ch, idx)
	if err != nil {
		return err
	}
	s.Enabled = enabled
	return nil
}

// SetStageParams replaces a stage's parameters and derives coefficients.
func (c *Config) SetStageParams(ch, idx int, p Params) error {
	s, err := c.stage(ch, idx)
	if err != nil {
		return err
	}
	if !validParams(p) {
		return ErrStageType
	}
	s.Params = p.recompute(c.SampleRate)
	return nil
}

// SetSampleRate changes the design rate and recomputes every stage.
func (c *Config) SetSampleRate(sampleRate float64) {
	c.SampleRate = sampleRate
	c.Recompute()
}

// Recompute derives coefficients for every populated stage.
func (c *Config) Recompute() {
	for ch := range c.Channels {
		chn := &c.Channels[ch]
		for i := range chn.StageCount {
			if p := chn.Stages[i].Params; p != nil {
				chn.Stages[i].Params = p.recompute(c.SampleRate)
			}
		}
	}
}

// Stages returns the number of populated stages across all channels.
func (c *Config) Stages() int {
	n := 0
	for i := range c.Channels {
		n += c.Channels[i].StageCount
	}
	return n
}

func truncateLabel(s string) string {
	if len(s) <= MaxLabelLen {
		return s
	}
	r := []rune(s)
	for len(string(r)) > MaxLabelLen {
		r = r[:len(r)-1]
	}
	return string(r)
}
