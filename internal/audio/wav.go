// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"amplifier/internal/sample"
)

var (
	ErrNotWAV       = errors.New("not a valid WAV file")
	ErrWAVChannels  = errors.New("WAV must have 1, 2 or 4 channels")
	ErrWAVBitDepth  = errors.New("unsupported WAV bit depth")
	ErrWAVNoSamples = errors.New("WAV contains no samples")
)

// WavSource replays a WAV file as capture blocks. Mono files are spread
// to a stereo pair. Samples are converted to left-justified 24-bit words
// so the pipeline sees exactly what the converters would deliver.
type WavSource struct {
	path       string
	words      []int32
	pos        int
	channels   int
	sampleRate float64
	frames     int
	loop       bool
	p          *pacer
}

// WavOptions configure a WavSource.
type WavOptions struct {
	FramesPerBuffer int
	Loop            bool // rewind at the end instead of finishing
	Paced           bool // deliver at the real-time rate
}

// OpenWav decodes the whole file into memory.
func OpenWav(path string, opts WavOptions) (*WavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	depth := int(dec.BitDepth)
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%s: %w: %d", path, ErrWAVBitDepth, depth)
	}
	fileChannels := buf.Format.NumChannels
	channels := fileChannels
	switch fileChannels {
	case 1:
		channels = 2
	case 2, 4:
	default:
		return nil, fmt.Errorf("%s: %w: %d", path, ErrWAVChannels, fileChannels)
	}
	if len(buf.Data) < fileChannels {
		return nil, fmt.Errorf("%s: %w", path, ErrWAVNoSamples)
	}

	frames := len(buf.Data) / fileChannels
	words := make([]int32, frames*channels)
	for f := range frames {
		for ch := range channels {
			v := buf.Data[f*fileChannels+min(ch, fileChannels-1)]
			words[f*channels+ch] = toWord(v, depth)
		}
	}

	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 256
	}
	sr := float64(buf.Format.SampleRate)
	logger.Infof("loaded %s: %d frames, %d ch, %.0f Hz, %d-bit", path, frames, fileChannels, sr, depth)

	return &WavSource{
		path:       path,
		words:      words,
		channels:   channels,
		sampleRate: sr,
		frames:     opts.FramesPerBuffer,
		loop:       opts.Loop,
		p:          newPacer(opts.FramesPerBuffer, channels, sr, opts.Paced),
	}, nil
}

// toWord converts a PCM integer of the given bit depth to a capture word.
// 8-bit WAV data is unsigned.
func toWord(v, depth int) int32 {
	if depth == 8 {
		v -= 128
	}
	shift := sample.BitDepth - depth
	if shift >= 0 {
		v <<= shift
	} else {
		v >>= -shift
	}
	return int32(v) << sample.PaddingBits
}

func (s *WavSource) fill(buf []int32) bool {
	n := 0
	for n < len(buf) {
		if s.pos >= len(s.words) {
			if !s.loop {
				break
			}
			s.pos = 0
		}
		c := copy(buf[n:], s.words[s.pos:])
		n += c
		s.pos += c
	}
	if n == 0 {
		return false
	}
	// A short final block is padded with silence.
	clear(buf[n:])
	return true
}

func (s *WavSource) Start(sink Sink) error {
	return s.p.start(sink, s.fill)
}

func (s *WavSource) Stop() error {
	s.p.stop()
	return nil
}

// Done is closed once a non-looping source has delivered the whole file,
// or after Stop.
func (s *WavSource) Done() <-chan struct{} { return s.p.done() }

// Frames returns the file length in frames.
func (s *WavSource) Frames() int { return len(s.words) / s.channels }

func (s *WavSource) Channels() int        { return s.channels }
func (s *WavSource) SampleRate() float64  { return s.sampleRate }
func (s *WavSource) FramesPerBuffer() int { return s.frames }

var _ Source = (*WavSource)(nil)
