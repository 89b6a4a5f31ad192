// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Phase sync defaults.
const (
	DefaultSyncFrames     = 64
	DefaultSearchRange    = 8
	DefaultSyncThreshold  = 2.0
	DefaultSyncInterval   = 5 * time.Second
	syncSilenceEpsilon    = 1e-9
	microsecondsPerSecond = 1e6
)

// SyncParams configures one cross-correlation check.
type SyncParams struct {
	SearchRange      int
	ThresholdSamples float64
	SampleRate       float64
}

// DefaultSyncParams returns the standard search range and threshold.
func DefaultSyncParams(sampleRate float64) SyncParams {
	return SyncParams{
		SearchRange:      DefaultSearchRange,
		ThresholdSamples: DefaultSyncThreshold,
		SampleRate:       sampleRate,
	}
}

// SyncDiag is the published phase-sync state between two ADCs.
type SyncDiag struct {
	PhaseOffsetSamples float64   `json:"phase_offset_samples"`
	PhaseOffsetUs      float64   `json:"phase_offset_us"`
	CorrelationPeak    float64   `json:"correlation_peak"`
	InSync             bool      `json:"in_sync"`
	CheckCount         uint64    `json:"check_count"`
	OutOfSyncCount     uint64    `json:"out_of_sync_count"`
	LastCheck          time.Time `json:"last_check"`
}

// ComputeSync estimates the sample offset of b relative to a. For each lag
// in [-R, R] it correlates a[i] with b[i+lag] over the inner window
// [R, n-R-1] and keeps the lag with the largest absolute sum. A positive
// offset means b lags a. Silent input or windows shorter than 2R+1
// return the in-sync default. Counters are left zero.
func ComputeSync(a, b []float64, p SyncParams) SyncDiag {
	res := SyncDiag{InSync: true}

	n := min(len(a), len(b))
	r := p.SearchRange
	if r < 0 || p.SampleRate <= 0 {
		return res
	}
	lo, hi := r, n-r-1
	if hi <= lo {
		return res
	}
	innerLen := float64(hi - lo + 1)
	ref := a[lo : hi+1]

	bestCorr, bestLag := -1.0, 0
	for lag := -r; lag <= r; lag++ {
		c := math.Abs(floats.Dot(ref, b[lo+lag:hi+1+lag])) / innerLen
		if c > bestCorr {
			bestCorr, bestLag = c, lag
		}
	}

	rmsA := math.Sqrt(floats.Dot(ref, ref) / innerLen)
	rmsB := math.Sqrt(floats.Dot(b[lo:hi+1], b[lo:hi+1]) / innerLen)
	prod := rmsA * rmsB
	if prod <= syncSilenceEpsilon {
		return res
	}

	res.CorrelationPeak = min(max(bestCorr/prod, 0), 1)
	res.PhaseOffsetSamples = float64(bestLag)
	res.PhaseOffsetUs = float64(bestLag) / p.SampleRate * microsecondsPerSecond
	res.InSync = math.Abs(res.PhaseOffsetSamples) <= p.ThresholdSamples
	return res
}

// SyncTracker runs periodic checks and carries the running counters. The
// result is read by telemetry at any time.
type SyncTracker struct {
	params SyncParams

	mu   sync.RWMutex
	diag SyncDiag
}

// NewSyncTracker returns a tracker reporting in sync before its first check.
func NewSyncTracker(p SyncParams) *SyncTracker {
	return &SyncTracker{params: p, diag: SyncDiag{InSync: true}}
}

// Check correlates two windows and folds the result into the counters.
func (t *SyncTracker) Check(a, b []float64, now time.Time) SyncDiag {
	d := ComputeSync(a, b, t.params)
	d.LastCheck = now

	t.mu.Lock()
	d.CheckCount = t.diag.CheckCount + 1
	d.OutOfSyncCount = t.diag.OutOfSyncCount
	if !d.InSync {
		d.OutOfSyncCount++
	}
	t.diag = d
	t.mu.Unlock()
	return d
}

// Diag returns the last published result.
func (t *SyncTracker) Diag() SyncDiag {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.diag
}
