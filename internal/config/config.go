// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"amplifier/internal/analysis"
	"amplifier/internal/dsp"
	"amplifier/internal/health"
	"amplifier/internal/log"
	"amplifier/internal/meter"
	"amplifier/internal/siggen"
	"amplifier/internal/usbprio"
	"amplifier/pkg/bitint"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1 // system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
	MinFFTSize      = 64
	MaxFFTSize      = 16384
)

// Capture sources.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
	SourceSiggen    = "siggen"
)

// Validation errors.
var (
	ErrSampleRate   = errors.New("sample rate out of range")
	ErrBufferFrames = errors.New("frames per buffer out of range")
	ErrChannels     = errors.New("input channels must be 2 or 4")
	ErrSource       = errors.New("unknown capture source")
	ErrWAVPath      = errors.New("wav source needs a path")
	ErrFFTSize      = errors.New("fft size must be a power of two")
	ErrWindow       = errors.New("unknown fft window")
	ErrInterval     = errors.New("interval must be positive")
	ErrLogLevel     = errors.New("unknown log level")
	ErrUSBChannel   = errors.New("usb input channel out of range")
	ErrTransport    = errors.New("transport misconfigured")
)

// Default returns the built-in configuration.
func Default() Config {
	th := health.DefaultThresholds()
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          SourcePortAudio,
			InputDevice:     MinDeviceID,
			SampleRate:      dsp.DefaultSampleRate,
			FramesPerBuffer: 256,
			InputChannels:   4,
			WAVLoop:         true,
		},
		Meter: MeterConfig{
			VUAttackMs:  meter.DefaultBallistics.VUAttack,
			VUDecayMs:   meter.DefaultBallistics.VUDecay,
			PeakHoldMs:  meter.DefaultBallistics.PeakHold,
			PeakDecayMs: meter.DefaultBallistics.PeakDecay,
			VRef:        2.0,
		},
		Analysis: AnalysisConfig{
			FFTSize:          1024,
			FFTWindow:        analysis.Hamming.String(),
			SpectrumInterval: 50 * time.Millisecond,
			WaveformInterval: 50 * time.Millisecond,
			SyncInterval:     analysis.DefaultSyncInterval,
			SyncFrames:       analysis.DefaultSyncFrames,
			SyncSearchRange:  analysis.DefaultSearchRange,
			SyncThreshold:    analysis.DefaultSyncThreshold,
			DumpInterval:     5 * time.Second,
		},
		Health: th,
		USBPriority: USBPriorityConfig{
			Enabled:      false,
			Debounce:     usbprio.DefaultTiming.Debounce,
			HoldOff:      usbprio.DefaultTiming.HoldOff,
			PollInterval: 10 * time.Millisecond,
			LeftInput:    usbprio.USBLeft,
			RightInput:   usbprio.USBRight,
		},
		SigGen: SigGenConfig{
			Waveform:      siggen.Sine.String(),
			FrequencyHz:   1000,
			AmplitudeDBFS: -20,
			Channel:       "both",
			Target:        "both",
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  24,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond,
			WSEnabled:        false,
			WSAddress:        ":8080",
			LogEvery:         20,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: %q", ErrLogLevel, c.LogLevel)
	}

	a := c.Audio
	switch a.Source {
	case SourcePortAudio, SourceSiggen:
	case SourceWAV:
		if a.WAVPath == "" {
			return ErrWAVPath
		}
	default:
		return fmt.Errorf("%w: %q", ErrSource, a.Source)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: %.0f", ErrSampleRate, a.SampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: %d", ErrBufferFrames, a.FramesPerBuffer)
	}
	if a.InputChannels != 2 && a.InputChannels != 4 {
		return fmt.Errorf("%w: %d", ErrChannels, a.InputChannels)
	}

	an := c.Analysis
	if !bitint.IsPowerOfTwo(an.FFTSize) || an.FFTSize < MinFFTSize || an.FFTSize > MaxFFTSize {
		return fmt.Errorf("%w: %d", ErrFFTSize, an.FFTSize)
	}
	if _, err := analysis.ParseWindowFunc(an.FFTWindow); err != nil {
		return fmt.Errorf("%w: %q", ErrWindow, an.FFTWindow)
	}
	for name, d := range map[string]time.Duration{
		"analysis.spectrum_interval":  an.SpectrumInterval,
		"analysis.waveform_interval":  an.WaveformInterval,
		"analysis.sync_interval":      an.SyncInterval,
		"analysis.dump_interval":      an.DumpInterval,
		"usb_priority.poll_interval":  c.USBPriority.PollInterval,
		"transport.udp_send_interval": c.Transport.UDPSendInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s = %s", ErrInterval, name, d)
		}
	}
	if an.SyncFrames <= 2*an.SyncSearchRange || an.SyncSearchRange < 0 {
		return fmt.Errorf("analysis.sync_frames %d too short for search range %d", an.SyncFrames, an.SyncSearchRange)
	}

	u := c.USBPriority
	if u.LeftInput < 0 || u.LeftInput >= dsp.MaxChannels || u.RightInput < 0 || u.RightInput >= dsp.MaxChannels {
		return fmt.Errorf("%w: %d/%d", ErrUSBChannel, u.LeftInput, u.RightInput)
	}

	if _, err := c.SigGenParams(); err != nil {
		return err
	}

	t := c.Transport
	if t.UDPEnabled && !strings.Contains(t.UDPTargetAddress, ":") {
		return fmt.Errorf("%w: udp_target_address %q has no port", ErrTransport, t.UDPTargetAddress)
	}
	if t.WSEnabled && t.WSAddress == "" {
		return fmt.Errorf("%w: ws_address is empty", ErrTransport)
	}
	return nil
}

// Ballistics returns the meter time constants.
func (c *Config) Ballistics() meter.Ballistics {
	return meter.Ballistics{
		VUAttack:  c.Meter.VUAttackMs,
		VUDecay:   c.Meter.VUDecayMs,
		PeakHold:  c.Meter.PeakHoldMs,
		PeakDecay: c.Meter.PeakDecayMs,
	}
}

// Window returns the parsed FFT window. Validate has already rejected
// unknown names.
func (c *Config) Window() analysis.WindowFunc {
	w, _ := analysis.ParseWindowFunc(c.Analysis.FFTWindow)
	return w
}

// SyncParams returns the phase-sync parameters.
func (c *Config) SyncParams() analysis.SyncParams {
	return analysis.SyncParams{
		SearchRange:      c.Analysis.SyncSearchRange,
		ThresholdSamples: c.Analysis.SyncThreshold,
		SampleRate:       c.Audio.SampleRate,
	}
}

// USBOptions returns the arbiter options.
func (c *Config) USBOptions() usbprio.Options {
	u := c.USBPriority
	return usbprio.Options{
		Timing:       usbprio.Timing{Debounce: u.Debounce, HoldOff: u.HoldOff},
		USBLeft:      u.LeftInput,
		USBRight:     u.RightInput,
		PollInterval: u.PollInterval,
		Enabled:      u.Enabled,
	}
}

// SigGenParams parses the generator section.
func (c *Config) SigGenParams() (siggen.Params, error) {
	s := c.SigGen
	p := siggen.DefaultParams()

	w, err := siggen.ParseWaveform(s.Waveform)
	if err != nil {
		return p, err
	}
	p.Waveform = w
	p.FrequencyHz = s.FrequencyHz
	p.AmplitudeDBFS = s.AmplitudeDBFS

	switch strings.ToLower(s.Channel) {
	case "", "both":
		p.Channel = siggen.Both
	case "left":
		p.Channel = siggen.Left
	case "right":
		p.Channel = siggen.Right
	default:
		return p, fmt.Errorf("siggen.channel %q: want left, right or both", s.Channel)
	}
	switch strings.ToLower(s.Target) {
	case "", "both":
		p.Target = siggen.TargetBoth
	case "adc1":
		p.Target = siggen.TargetADC1
	case "adc2":
		p.Target = siggen.TargetADC2
	default:
		return p, fmt.Errorf("siggen.target %q: want adc1, adc2 or both", s.Target)
	}
	return p, nil
}
