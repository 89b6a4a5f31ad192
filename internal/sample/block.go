// SPDX-License-Identifier: MIT
package sample

// Block is one capture period of interleaved words. Analyzers borrow it
// read-only for the duration of a single pipeline pass and must copy
// anything they keep.
type Block struct {
	Words      []int32
	Channels   int
	SampleRate float64
}

// Frames returns the number of complete frames in the block.
func (b Block) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Words) / b.Channels
}

// Channel decodes one channel of the block into dst and returns the
// filled prefix. dst is reused when it has enough capacity.
func (b Block) Channel(ch int, dst []float64) []float64 {
	frames := b.Frames()
	if ch < 0 || ch >= b.Channels {
		return dst[:0]
	}
	if cap(dst) < frames {
		dst = make([]float64, frames)
	}
	dst = dst[:frames]
	for i := range frames {
		dst[i] = Decode(b.Words[i*b.Channels+ch])
	}
	return dst
}

// Silent reports whether every word in the block is zero.
func (b Block) Silent() bool {
	for _, w := range b.Words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Sub returns the frames of channels [first, first+n) as a new view
// backed by dst. It is used to split a multi-ADC block into per-ADC
// stereo pairs without allocating on the capture path.
func (b Block) Sub(first, n int, dst []int32) Block {
	frames := b.Frames()
	if first < 0 || n <= 0 || first+n > b.Channels {
		return Block{Channels: n, SampleRate: b.SampleRate}
	}
	if cap(dst) < frames*n {
		dst = make([]int32, frames*n)
	}
	dst = dst[:frames*n]
	for f := range frames {
		copy(dst[f*n:f*n+n], b.Words[f*b.Channels+first:f*b.Channels+first+n])
	}
	return Block{Words: dst, Channels: n, SampleRate: b.SampleRate}
}
