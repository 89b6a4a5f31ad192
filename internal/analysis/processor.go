// SPDX-License-Identifier: MIT
/*
Package analysis implements the spectral and inter-ADC phase analysis of
the capture pipeline.

Per-block work is limited to feeding ring buffers. The FFT and the
cross-correlation run at a reduced cadence chosen by the caller, and
both tolerate being skipped or delayed.
*/
package analysis

// BlockProcessor consumes interleaved capture words. Implementations run
// on the capture path and must not allocate or block.
type BlockProcessor interface {
	Process(words []int32, channels int)
}

// SpectrumProvider exposes the latest spectrum to telemetry consumers.
type SpectrumProvider interface {
	Spectrum() Spectrum
	FrequencyForBin(bin int) float64
	FFTSize() int
	SampleRate() float64
}
