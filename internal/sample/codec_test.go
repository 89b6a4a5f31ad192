// SPDX-License-Identifier: MIT
package sample

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		word int32
		want int32
	}{
		{"zero", 0, 0},
		{"padding only", 0xFF, 0},
		{"full scale positive", MaxMagnitude << PaddingBits, MaxMagnitude},
		{"minus one", -1 << PaddingBits, -1},
		{"negative padding keeps sign", -1, -1},
		{"most negative", math.MinInt32, -(1 << 23)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.word); got != tt.want {
				t.Errorf("Parse(%#x) = %d, want %d", tt.word, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(MaxMagnitude); got != 1 {
		t.Errorf("Normalize(max) = %v, want 1", got)
	}
	if got := Normalize(0); got != 0 {
		t.Errorf("Normalize(0) = %v, want 0", got)
	}
	if got := Normalize(-MaxMagnitude); got != -1 {
		t.Errorf("Normalize(-max) = %v, want -1", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, x := range []float64{-1, -0.5, -0.001, 0, 0.25, 0.999, 1} {
		got := Decode(Encode(x))
		if math.Abs(got-x) > 1.0/MaxMagnitude {
			t.Errorf("Decode(Encode(%v)) = %v", x, got)
		}
	}
}

func TestEncodeClamps(t *testing.T) {
	if Encode(4) != Encode(1) {
		t.Error("Encode did not clamp positive overflow")
	}
	if Encode(-4) != Encode(-1) {
		t.Error("Encode did not clamp negative overflow")
	}
}

func TestBlockChannelAndSub(t *testing.T) {
	b := Block{
		Words: []int32{
			Encode(0.1), Encode(-0.1), Encode(0.5), Encode(0),
			Encode(0.2), Encode(-0.2), Encode(0.6), Encode(0),
		},
		Channels:   4,
		SampleRate: 48000,
	}

	if b.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", b.Frames())
	}

	left := b.Channel(0, nil)
	if len(left) != 2 || math.Abs(left[1]-0.2) > 1e-6 {
		t.Errorf("Channel(0) = %v", left)
	}
	if got := b.Channel(9, nil); len(got) != 0 {
		t.Errorf("Channel(9) returned %d samples, want 0", len(got))
	}

	adc2 := b.Sub(2, 2, nil)
	if adc2.Channels != 2 || adc2.Frames() != 2 {
		t.Fatalf("Sub shape = %d ch / %d frames", adc2.Channels, adc2.Frames())
	}
	if adc2.Words[2] != Encode(0.6) {
		t.Errorf("Sub frame 1 left = %d, want %d", adc2.Words[2], Encode(0.6))
	}
	if b.Silent() {
		t.Error("Silent() = true for a non-zero block")
	}
	if !(Block{Words: make([]int32, 8), Channels: 2}).Silent() {
		t.Error("Silent() = false for an all-zero block")
	}
}

func TestBlockChannelNoAllocs(t *testing.T) {
	b := Block{Words: make([]int32, 512), Channels: 2, SampleRate: 48000}
	dst := make([]float64, 256)
	allocs := testing.AllocsPerRun(100, func() {
		dst = b.Channel(1, dst)
	})
	if allocs > 0 {
		t.Errorf("Channel allocated %.1f times, want 0", allocs)
	}
}

func BenchmarkDecode(b *testing.B) {
	b.ReportAllocs()
	var sink float64
	for b.Loop() {
		sink += Decode(0x12345600)
	}
	_ = sink
}
