// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"amplifier/internal/sample"
)

func TestRecorderRoundTrip(t *testing.T) {
	for _, depth := range []int{16, 24} {
		t.Run(fmt.Sprintf("%d-bit", depth), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "take.wav")
			r := NewRecorder(2, 48000, depth)
			if err := r.Start(path); err != nil {
				t.Fatal(err)
			}
			if !r.Recording() {
				t.Fatal("not recording after Start")
			}

			in := []float64{0.5, -0.5, 0.25, -0.25, 0, 0.75}
			r.Write(in)
			r.Write(in)
			if r.Frames() != 6 {
				t.Errorf("frames = %d, want 6", r.Frames())
			}
			if err := r.Stop(); err != nil {
				t.Fatal(err)
			}
			if r.Recording() {
				t.Error("still recording after Stop")
			}

			src, err := OpenWav(path, WavOptions{FramesPerBuffer: 4})
			if err != nil {
				t.Fatal(err)
			}
			if src.Frames() != 6 || src.Channels() != 2 || src.SampleRate() != 48000 {
				t.Fatalf("replay = %d frames, %d ch, %.0f Hz", src.Frames(), src.Channels(), src.SampleRate())
			}
			tol := 2.0 / float64(int(1)<<(depth-1))
			for i, want := range in {
				got := sample.Decode(src.words[i])
				if math.Abs(got-want) > tol {
					t.Errorf("sample %d = %.6f, want %.6f", i, got, want)
				}
			}
		})
	}
}

func TestRecorderAlreadyRecording(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(2, 48000, 24)
	if err := r.Start(filepath.Join(dir, "a.wav")); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := r.Start(filepath.Join(dir, "b.wav")); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorderStartInDir(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(4, 48000, 24)
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	name, err := r.StartInDir(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(name) != "capture_20240309_140507.wav" {
		t.Errorf("name = %s", name)
	}
	if _, err := os.Stat(name); err != nil {
		t.Error(err)
	}
}

func TestRecorderIdle(t *testing.T) {
	r := NewRecorder(2, 48000, 0)
	if r.bitDepth != 24 {
		t.Errorf("bit depth = %d, want 24 fallback", r.bitDepth)
	}
	r.Write([]float64{0.1, 0.2})
	if r.Frames() != 0 || r.Failed() {
		t.Error("idle recorder accepted frames")
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop while idle: %v", err)
	}
}

func TestOpenWavRejects(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "bogus.wav")
	if err := os.WriteFile(bogus, []byte(strings.Repeat("not a wav ", 10)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenWav(bogus, WavOptions{}); !errors.Is(err, ErrNotWAV) {
		t.Errorf("bogus file: %v", err)
	}
	if _, err := OpenWav(filepath.Join(dir, "missing.wav"), WavOptions{}); err == nil {
		t.Error("missing file accepted")
	}
}

func TestToWord(t *testing.T) {
	tests := []struct {
		v, depth int
		want     float64
	}{
		{1 << 14, 16, 0.5},
		{-(1 << 22), 24, -0.5},
		{192, 8, 0.5},
		{128, 8, 0},
		{1 << 30, 32, 0.5},
	}
	for _, tt := range tests {
		got := sample.Decode(toWord(tt.v, tt.depth))
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("toWord(%d, %d) decodes to %.6f, want %.6f", tt.v, tt.depth, got, tt.want)
		}
	}
}
