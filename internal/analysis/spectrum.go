// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"
	"sync"

	"amplifier/internal/log"
	"amplifier/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

var logger = log.New("analysis")

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

const (
	Hamming WindowFunc = iota
	Hann
	Blackman
	BlackmanHarris
	BlackmanNuttall
	Nuttall
	FlatTop
	BartlettHann
)

var windowNames = [...]string{
	Hamming:         "hamming",
	Hann:            "hann",
	Blackman:        "blackman",
	BlackmanHarris:  "blackmanharris",
	BlackmanNuttall: "blackmannuttall",
	Nuttall:         "nuttall",
	FlatTop:         "flattop",
	BartlettHann:    "bartletthann",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. An
// unknown name returns Hamming and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	n := strings.ToLower(strings.ReplaceAll(name, "-", ""))
	if n == "hanning" {
		return Hann, nil
	}
	for i, s := range windowNames {
		if s == n {
			return WindowFunc(i), nil
		}
	}
	return Hamming, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

func applyWindow(coeffs []float64, w WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanHarris:
		window.BlackmanHarris(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case FlatTop:
		window.FlatTop(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	default:
		window.Hamming(coeffs)
	}
}

// NumBands is the number of aggregated spectrum bands.
const NumBands = 16

// BandEdges are the band boundaries in Hz. Band b covers
// [BandEdges[b], BandEdges[b+1]].
var BandEdges = [NumBands + 1]float64{
	0, 40, 80, 160, 315, 630, 1250, 2500,
	5000, 8000, 10000, 12500, 14000, 16000, 18000, 20000, 24000,
}

// minMagnitude keeps normalization finite for a silent block.
const minMagnitude = 0.0001

// AggregateBands reduces a magnitude spectrum to len(bands) normalized
// band values. mags must hold at least fftSize/2 bins. Each band is the
// mean magnitude of its bin range divided by the largest non-DC bin and
// clamped to [0, 1]. Bands starting at or above Nyquist report 0.
func AggregateBands(mags []float64, fftSize int, sampleRate float64, bands []float64) {
	half := fftSize / 2
	if half < 2 || len(mags) < half || sampleRate <= 0 {
		for i := range bands {
			bands[i] = 0
		}
		return
	}
	binWidth := sampleRate / float64(fftSize)

	maxMag := minMagnitude
	for i := 1; i < half; i++ {
		maxMag = max(maxMag, mags[i])
	}

	for b := range bands {
		if b >= NumBands {
			bands[b] = 0
			continue
		}
		lo := int(BandEdges[b] / binWidth)
		hi := int(BandEdges[b+1] / binWidth)
		if lo >= half {
			bands[b] = 0
			continue
		}
		lo = max(lo, 1)
		hi = min(hi, half-1)
		if lo > hi {
			bands[b] = 0
			continue
		}

		var sum float64
		for i := lo; i <= hi; i++ {
			sum += mags[i]
		}
		v := sum / float64(hi-lo+1) / maxMag
		bands[b] = min(max(v, 0), 1)
	}
}

// Spectrum is one analysis result.
type Spectrum struct {
	Bands      [NumBands]float64 `json:"bands"`
	DominantHz float64           `json:"dominant_hz"`
	SNRDB      float64           `json:"snr_db"`
	SFDRDB     float64           `json:"sfdr_db"`
}

type fftWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
}

// SpectrumAnalyzer runs a windowed real FFT over the latest FFTSize mono
// samples. Process feeds it per block from the capture path; Update runs
// the transform at whatever reduced rate the caller chooses. All buffers
// are allocated up front.
type SpectrumAnalyzer struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	windowType WindowFunc
	ring       *SampleRing
	ws         fftWorkspace

	mu     sync.RWMutex
	result Spectrum
	mags   []float64
}

var (
	_ BlockProcessor   = (*SpectrumAnalyzer)(nil)
	_ SpectrumProvider = (*SpectrumAnalyzer)(nil)
)

// NewSpectrumAnalyzer returns an analyzer for power-of-two fftSize.
func NewSpectrumAnalyzer(fftSize int, sampleRate float64, w WindowFunc) (*SpectrumAnalyzer, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 4 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d (nearest %d)", fftSize, bitint.NextPowerOfTwo(fftSize))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	bins := fftSize/2 + 1
	a := &SpectrumAnalyzer{
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		sampleRate: sampleRate,
		windowType: w,
		ring:       NewSampleRing(fftSize),
		ws: fftWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			window:    make([]float64, fftSize),
		},
		mags: make([]float64, bins),
	}
	applyWindow(a.ws.window, w)

	logger.Debugf("spectrum analyzer: size %d (%d stages), %.0f Hz, %v window", fftSize, bitint.Log2(fftSize), sampleRate, w)
	return a, nil
}

// Process pushes the channel average of every frame into the ring.
func (a *SpectrumAnalyzer) Process(words []int32, channels int) {
	a.ring.PushMix(words, channels)
}

// Update transforms the ring contents and publishes the result.
func (a *SpectrumAnalyzer) Update() Spectrum {
	a.ring.CopyLatest(a.ws.input)
	return a.Analyze(a.ws.input)
}

// Analyze windows samples (zero padded or truncated to the FFT size),
// transforms them and aggregates bands. It does not allocate.
func (a *SpectrumAnalyzer) Analyze(samples []float64) Spectrum {
	in := a.ws.input
	for i := range in {
		var s float64
		if i < len(samples) {
			s = samples[i]
		}
		in[i] = s * a.ws.window[i]
	}

	a.fft.Coefficients(a.ws.fftOutput, in)

	half := a.fftSize / 2
	var (
		maxMag  float64
		maxBin  int
		spectra Spectrum
	)
	for i, c := range a.ws.fftOutput {
		m := cmplx.Abs(c)
		a.ws.magnitude[i] = m
		if i > 0 && i < half && m > maxMag {
			maxMag, maxBin = m, i
		}
	}
	spectra.DominantHz = a.FrequencyForBin(maxBin)
	spectra.SNRDB, spectra.SFDRDB = spectralPurity(a.ws.magnitude[:half], maxBin)
	AggregateBands(a.ws.magnitude, a.fftSize, a.sampleRate, spectra.Bands[:])

	a.mu.Lock()
	a.result = spectra
	copy(a.mags, a.ws.magnitude)
	a.mu.Unlock()
	return spectra
}

// spectralPurity returns SNR (fundamental power over everything else,
// DC excluded) and SFDR (fundamental over the largest remaining bin),
// both in dB. The fundamental occupies its bin and one neighbour on each
// side to absorb window leakage.
func spectralPurity(mags []float64, fundamental int) (snr, sfdr float64) {
	if fundamental <= 0 {
		return 0, 0
	}
	var sig, noise, spur float64
	for i := 1; i < len(mags); i++ {
		p := mags[i] * mags[i]
		if i >= fundamental-1 && i <= fundamental+1 {
			sig += p
			continue
		}
		noise += p
		spur = max(spur, mags[i])
	}
	const eps = 1e-20
	snr = 10 * math.Log10((sig+eps)/(noise+eps))
	sfdr = 20 * math.Log10((mags[fundamental]+eps)/(spur+eps))
	return snr, sfdr
}

// Spectrum returns the last published result.
func (a *SpectrumAnalyzer) Spectrum() Spectrum {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.result
}

// MagnitudesInto copies the last magnitude spectrum into dest, which must
// hold FFTSize/2+1 values.
func (a *SpectrumAnalyzer) MagnitudesInto(dest []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(dest) != len(a.mags) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(a.mags))
	}
	copy(dest, a.mags)
	return nil
}

// FrequencyForBin returns the center frequency of an FFT bin.
func (a *SpectrumAnalyzer) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= len(a.ws.fftOutput) {
		return 0
	}
	return float64(bin) * a.sampleRate / float64(a.fftSize)
}

// FFTSize returns the transform length.
func (a *SpectrumAnalyzer) FFTSize() int { return a.fftSize }

// SampleRate returns the analysis sample rate.
func (a *SpectrumAnalyzer) SampleRate() float64 { return a.sampleRate }

// Window returns the configured window.
func (a *SpectrumAnalyzer) Window() WindowFunc { return a.windowType }
