// SPDX-License-Identifier: MIT
package analysis

import "amplifier/internal/sample"

// SampleRing holds the most recent samples of a mono stream. It has a
// single writer and is not safe for concurrent use.
type SampleRing struct {
	buf  []float64
	pos  int
	full bool
}

// NewSampleRing returns a ring of the given capacity.
func NewSampleRing(size int) *SampleRing {
	return &SampleRing{buf: make([]float64, size)}
}

// Push appends one sample, overwriting the oldest.
func (r *SampleRing) Push(v float64) {
	r.buf[r.pos] = v
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
		r.full = true
	}
}

// PushMix appends the channel average of every frame of an interleaved
// block of capture words.
func (r *SampleRing) PushMix(words []int32, channels int) {
	if channels <= 0 {
		return
	}
	scale := 1 / float64(channels)
	for f := 0; f+channels <= len(words); f += channels {
		var sum float64
		for ch := range channels {
			sum += sample.Decode(words[f+ch])
		}
		r.Push(sum * scale)
	}
}

// CopyLatest writes the ring oldest-first into dst, which must be at least
// Len() long. Slots never written read as zero.
func (r *SampleRing) CopyLatest(dst []float64) {
	n := copy(dst, r.buf[r.pos:])
	copy(dst[n:], r.buf[:r.pos])
}

// Len returns the ring capacity.
func (r *SampleRing) Len() int { return len(r.buf) }

// Full reports whether every slot has been written at least once.
func (r *SampleRing) Full() bool { return r.full }

// Reset zeroes the ring.
func (r *SampleRing) Reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.pos, r.full = 0, false
}
