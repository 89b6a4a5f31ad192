// SPDX-License-Identifier: MIT
/*
Package utils provides deterministic test fixtures shared by the
analysis, metering and transport tests: capture-word generators and a
recording Transport.
*/
package utils

import (
	"math"
	"sync"

	"amplifier/internal/sample"
)

// MockTransport records what it is sent instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	Last   any
	Count  int
	Closed bool
}

// Send stores data for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Last = data
	m.Count++
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Sent returns the last payload and the number of sends.
func (m *MockTransport) Sent() (any, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Last, m.Count
}

// GenerateCaptureWords renders a sine of the given normalized amplitude as
// interleaved 24-in-32 capture words, identical on every channel.
func GenerateCaptureWords(sampleRate, frequency, amplitude float64, frames, channels int) []int32 {
	words := make([]int32, frames*channels)
	for f := range frames {
		w := sample.Encode(amplitude * math.Sin(2*math.Pi*frequency*float64(f)/sampleRate))
		for ch := range channels {
			words[f*channels+ch] = w
		}
	}
	return words
}

// GenerateComplexWave renders a 440 Hz fundamental with two harmonics as
// mono capture words.
func GenerateComplexWave(size int, sampleRate float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = sample.Encode(signal * 0.9)
	}
	return buffer
}

// GenerateSineWave renders a normalized float sine.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = math.Sin(2 * math.Pi * frequency * float64(i) / sampleRate)
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
