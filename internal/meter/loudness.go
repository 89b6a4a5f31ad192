// SPDX-License-Identifier: MIT
/*
Package meter implements the per-channel level metering of the capture
pipeline: block RMS, dBFS conversion, VU and peak-hold ballistics and the
peak-per-bin waveform downsample used by the display.

Every function here is total. Empty or all-zero input yields zero RMS and
the dBFS floor rather than an error.
*/
package meter

import (
	"math"

	"amplifier/internal/sample"
)

// DBFSFloor is the reported level of digital silence.
const DBFSFloor = -96.0

// ComputeRMS returns the RMS of one channel of an interleaved block of
// capture words. It returns 0 for an empty block or when channel is not
// a valid index for channels.
func ComputeRMS(words []int32, channel, channels int) float64 {
	if channels <= 0 || channel < 0 || channel >= channels {
		return 0
	}
	frames := len(words) / channels
	if frames == 0 {
		return 0
	}

	var sum float64
	for i := channel; i < frames*channels; i += channels {
		s := sample.Decode(words[i])
		sum += s * s
	}
	return math.Sqrt(sum / float64(frames))
}

// RMSToDBFS converts an RMS value to dBFS, never reporting below DBFSFloor.
func RMSToDBFS(rms float64) float64 {
	if rms <= 0 {
		return DBFSFloor
	}
	db := 20 * math.Log10(rms)
	if db < DBFSFloor || math.IsNaN(db) {
		return DBFSFloor
	}
	return db
}

// CombinedRMS folds a stereo pair into one power-preserving figure.
func CombinedRMS(left, right float64) float64 {
	return math.Sqrt((left*left + right*right) / 2)
}

// RMSToVrms scales a normalized RMS to volts given the full-scale
// reference voltage of the analog front end. RMS is clamped to [0, 1],
// so the result never exceeds vref.
func RMSToVrms(rms, vref float64) float64 {
	if rms <= 0 || vref <= 0 {
		return 0
	}
	return min(rms, 1) * vref
}
