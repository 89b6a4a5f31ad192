// SPDX-License-Identifier: MIT
/*
Package sample decodes the fixed-point words delivered by the capture
boundary.

The ADCs produce 24-bit samples left-justified in a 32-bit slot, so the
low PaddingBits of every word are padding. Parse discards them with an
arithmetic shift (sign preserving) and Normalize scales the result into
[-1, 1].
*/
package sample

const (
	// PaddingBits is the number of low-order padding bits in a capture word.
	PaddingBits = 8
	// BitDepth is the true ADC resolution.
	BitDepth = 24
	// MaxMagnitude is the largest positive 24-bit value.
	MaxMagnitude = 1<<(BitDepth-1) - 1
)

// Parse confines a capture word to BitDepth bits.
func Parse(word int32) int32 {
	return word >> PaddingBits
}

// Normalize maps a parsed sample into [-1, 1]. The most negative 24-bit
// value lands marginally below -1.
func Normalize(v int32) float64 {
	return float64(v) / MaxMagnitude
}

// Decode is Normalize(Parse(word)).
func Decode(word int32) float64 {
	return float64(word>>PaddingBits) / MaxMagnitude
}

// Encode converts a normalized sample back into a left-justified capture
// word. Input outside [-1, 1] is clamped.
func Encode(x float64) int32 {
	switch {
	case x > 1:
		x = 1
	case x < -1:
		x = -1
	}
	v := int32(x * MaxMagnitude)
	return v << PaddingBits
}
