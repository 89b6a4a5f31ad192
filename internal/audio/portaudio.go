// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures from a host input device. PortAudio's int32
// samples are full-scale 32-bit, which the 24-in-32 codec reads exactly
// like converter words.
type PortAudioSource struct {
	device     *portaudio.DeviceInfo
	latency    time.Duration
	channels   int
	sampleRate float64
	frames     int
	stream     *portaudio.Stream
	sink       Sink
}

// PortAudioOptions configure a PortAudioSource.
type PortAudioOptions struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// NewPortAudioSource resolves the device. PortAudio must be initialized.
func NewPortAudioSource(opts PortAudioOptions) (*PortAudioSource, error) {
	device, err := InputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < opts.Channels {
		return nil, fmt.Errorf("device %s has %d inputs, need %d",
			device.Name, device.MaxInputChannels, opts.Channels)
	}
	s := &PortAudioSource{
		device:     device,
		channels:   opts.Channels,
		sampleRate: opts.SampleRate,
		frames:     opts.FramesPerBuffer,
		latency:    device.DefaultHighInputLatency,
	}
	if opts.LowLatency {
		s.latency = device.DefaultLowInputLatency
	}
	return s, nil
}

func (s *PortAudioSource) Start(sink Sink) error {
	if s.stream != nil {
		return errAlreadyStarted
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.channels,
			Device:   s.device,
			Latency:  s.latency,
		},
		FramesPerBuffer: s.frames,
		SampleRate:      s.sampleRate,
	}
	s.sink = sink

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return fmt.Errorf("open stream on %s: %w", s.device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream on %s: %w", s.device.Name, err)
	}
	s.stream = stream
	logger.Infof("capturing from %s (%d ch, %.0f Hz, %d frames, latency %s)",
		s.device.Name, s.channels, s.sampleRate, s.frames, s.latency)
	return nil
}

// callback runs on PortAudio's audio thread.
func (s *PortAudioSource) callback(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.sink.Block(in)
}

func (s *PortAudioSource) Stop() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	s.stream = nil
	return nil
}

func (s *PortAudioSource) Channels() int        { return s.channels }
func (s *PortAudioSource) SampleRate() float64  { return s.sampleRate }
func (s *PortAudioSource) FramesPerBuffer() int { return s.frames }

var _ Source = (*PortAudioSource)(nil)
