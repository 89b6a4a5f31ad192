// SPDX-License-Identifier: MIT
package meter

import (
	"math"

	"amplifier/internal/sample"
)

// WaveformBins is the display resolution of one waveform frame.
const WaveformBins = 256

// Silence quantizes to this midpoint.
const WaveformMidpoint = 128

// Quantize maps x in [-1, 1] onto 0..255 centered on WaveformMidpoint.
func Quantize(x float64) uint8 {
	if math.IsNaN(x) {
		return WaveformMidpoint
	}
	v := int((x+1)*127.5 + 0.5)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Downsample fills out with one byte per bin. Each bin keeps the
// channel-averaged frame with the largest magnitude among the frames
// mapping to it, so short transients survive the reduction. Bins that
// receive no frames report the midpoint.
func Downsample(words []int32, channels int, out []uint8) {
	bins := len(out)
	for i := range out {
		out[i] = WaveformMidpoint
	}
	if channels <= 0 || bins == 0 {
		return
	}
	frames := len(words) / channels
	if frames == 0 {
		return
	}

	var (
		cur    = -1
		best   float64
		bestAb float64
	)
	for f := range frames {
		bin := f * bins / frames
		if bin != cur {
			if cur >= 0 {
				out[cur] = Quantize(best)
			}
			cur, best, bestAb = bin, 0, -1
		}

		var sum float64
		for ch := range channels {
			sum += sample.Decode(words[f*channels+ch])
		}
		avg := sum / float64(channels)
		if a := math.Abs(avg); a > bestAb {
			best, bestAb = avg, a
		}
	}
	out[cur] = Quantize(best)
}
