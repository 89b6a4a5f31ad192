// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"amplifier/internal/sample"
)

// MaxConsecutiveWriteFailures stops a recording whose file keeps failing.
const MaxConsecutiveWriteFailures = 5

var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes normalized frames to a WAV file. Write is called from
// the capture path; Start and Stop from anywhere.
type Recorder struct {
	channels   int
	sampleRate int
	bitDepth   int

	active atomic.Bool
	failed atomic.Bool

	mu       sync.Mutex // held by Write and by Start/Stop while swapping the file
	file     *os.File
	encoder  *wav.Encoder
	buf      *goaudio.IntBuffer
	failures int
	frames   uint64
}

// NewRecorder returns an idle recorder. bitDepth is 16 or 24.
func NewRecorder(channels int, sampleRate float64, bitDepth int) *Recorder {
	if bitDepth != 16 {
		bitDepth = 24
	}
	return &Recorder{
		channels:   channels,
		sampleRate: int(sampleRate),
		bitDepth:   bitDepth,
	}
}

// Start creates filename and begins recording.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.Load() {
		return ErrAlreadyRecording
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, r.channels, 1)
	r.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: r.channels,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
	}
	r.failures = 0
	r.frames = 0
	r.failed.Store(false)
	r.active.Store(true)
	logger.Infof("recording to %s (%d ch, %d-bit)", filename, r.channels, r.bitDepth)
	return nil
}

// StartInDir records to a timestamped file in dir.
func (r *Recorder) StartInDir(dir string, now time.Time) (string, error) {
	name := filepath.Join(dir, "capture_"+now.Format("20060102_150405")+".wav")
	return name, r.Start(name)
}

// Write appends interleaved normalized samples. It is a no-op while not
// recording.
func (r *Recorder) Write(samples []float64) {
	if !r.active.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	shift := sample.PaddingBits + sample.BitDepth - r.bitDepth
	for i, v := range samples {
		r.buf.Data[i] = int(sample.Encode(v) >> shift)
	}

	if err := r.encoder.Write(r.buf); err != nil {
		r.failures++
		if r.failures >= MaxConsecutiveWriteFailures {
			r.active.Store(false)
			r.failed.Store(true)
		}
		return
	}
	r.failures = 0
	r.frames += uint64(len(samples) / r.channels)
}

// Failed reports whether the recording stopped itself after repeated
// write failures. Stop still has to be called to close the file.
func (r *Recorder) Failed() bool { return r.failed.Load() }

// Recording reports whether frames are being written.
func (r *Recorder) Recording() bool { return r.active.Load() }

// Frames returns the number of frames written to the current file.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stop finalizes the WAV header and closes the file.
func (r *Recorder) Stop() error {
	r.active.Store(false)
	r.failed.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.encoder != nil {
		if err := r.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalize wav: %w", err))
		}
		r.encoder = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		logger.Infof("recording stopped after %d frames", r.frames)
		r.file = nil
	}
	return errors.Join(errs...)
}
