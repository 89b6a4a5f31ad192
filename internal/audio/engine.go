// SPDX-License-Identifier: MIT
/*
Package audio runs the per-block metering and analysis pipeline behind a
capture Source.

Every block, for each stereo ADC:

	health counters -> silence fast path (meters decay only)
	                -> L/R/combined RMS, dBFS, VU, peak hold
	                -> waveform accumulation
	                -> spectrum ring, FFT every spectrum interval
	                -> noise floor
	-> publish snapshot

Thread Safety:
  - Block runs on the source's capture goroutine and never logs, blocks
    on I/O or allocates after the first block.
  - Work that must not run there (phase-sync correlation, periodic dumps,
    recording failure reports) is requested through atomic flags and
    done by the housekeeping goroutine.
  - Snapshot reads are guarded by a sync.RWMutex; readers may see a
    snapshot one block old.
*/
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"amplifier/internal/analysis"
	"amplifier/internal/dsp"
	"amplifier/internal/health"
	"amplifier/internal/log"
	"amplifier/internal/meter"
	"amplifier/internal/sample"
	"amplifier/internal/siggen"
	"amplifier/internal/telemetry"
	"amplifier/internal/usbprio"
)

var logger = log.New("audio")

const housekeepingInterval = 100 * time.Millisecond

// Options configure an Engine. Zero durations and sizes take the
// DefaultOptions values.
type Options struct {
	Ballistics       meter.Ballistics
	Thresholds       health.Thresholds
	FFTSize          int
	Window           analysis.WindowFunc
	SpectrumInterval time.Duration
	WaveformInterval time.Duration
	SyncInterval     time.Duration
	SyncFrames       int
	SyncSearchRange  int
	SyncThreshold    float64
	DumpInterval     time.Duration

	// Optional collaborators.
	Store     *dsp.Store
	Arbiter   *usbprio.Arbiter
	Presence  usbprio.Presence
	Generator *siggen.Generator
	Recorder  *Recorder
}

// DefaultOptions returns the standard analysis settings with no
// collaborators attached.
func DefaultOptions() Options {
	return Options{
		Ballistics:       meter.DefaultBallistics,
		Thresholds:       health.DefaultThresholds(),
		FFTSize:          1024,
		Window:           analysis.Hamming,
		SpectrumInterval: 50 * time.Millisecond,
		WaveformInterval: 50 * time.Millisecond,
		SyncInterval:     analysis.DefaultSyncInterval,
		SyncFrames:       analysis.DefaultSyncFrames,
		SyncSearchRange:  analysis.DefaultSearchRange,
		SyncThreshold:    analysis.DefaultSyncThreshold,
		DumpInterval:     5 * time.Second,
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.Ballistics == (meter.Ballistics{}) {
		o.Ballistics = d.Ballistics
	}
	if o.Thresholds == (health.Thresholds{}) {
		o.Thresholds = d.Thresholds
	}
	if o.FFTSize == 0 {
		o.FFTSize = d.FFTSize
	}
	if o.SpectrumInterval <= 0 {
		o.SpectrumInterval = d.SpectrumInterval
	}
	if o.WaveformInterval <= 0 {
		o.WaveformInterval = d.WaveformInterval
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = d.SyncInterval
	}
	if o.SyncFrames <= 0 {
		o.SyncFrames = d.SyncFrames
	}
	if o.SyncSearchRange <= 0 {
		o.SyncSearchRange = d.SyncSearchRange
	}
	if o.SyncThreshold <= 0 {
		o.SyncThreshold = d.SyncThreshold
	}
	if o.DumpInterval <= 0 {
		o.DumpInterval = d.DumpInterval
	}
}

// adc is the capture-path state of one stereo converter. Only Block
// touches it.
type adc struct {
	index    int
	left     *meter.ChannelMeter
	right    *meter.ChannelMeter
	combined *meter.ChannelMeter
	monitor  *health.Monitor
	spectrum *analysis.SpectrumAnalyzer
	syncRing *analysis.SampleRing

	words    []int32 // this ADC's stereo block
	wfAccum  []int32
	wfFill   int
	waveform [meter.WaveformBins]byte
	lastFFT  time.Time
	dbfs     float64
}

func newADC(index int, o *Options, sampleRate float64, frames, wfFrames, syncWindow int) (*adc, error) {
	spec, err := analysis.NewSpectrumAnalyzer(o.FFTSize, sampleRate, o.Window)
	if err != nil {
		return nil, fmt.Errorf("adc %d: %w", index+1, err)
	}
	a := &adc{
		index:    index,
		left:     meter.NewChannelMeter(o.Ballistics),
		right:    meter.NewChannelMeter(o.Ballistics),
		combined: meter.NewChannelMeter(o.Ballistics),
		monitor:  health.NewMonitor(o.Thresholds),
		spectrum: spec,
		syncRing: analysis.NewSampleRing(syncWindow),
		words:    make([]int32, frames*2),
		wfAccum:  make([]int32, wfFrames*2),
		dbfs:     meter.DBFSFloor,
	}
	for i := range a.waveform {
		a.waveform[i] = meter.WaveformMidpoint
	}
	return a, nil
}

// Engine owns a Source and the per-ADC pipelines fed by it.
type Engine struct {
	opts       Options
	source     Source
	channels   int
	sampleRate float64
	frames     int
	adcs       []*adc

	// Capture path only.
	epoch       time.Time
	frameCount  uint64
	blocks      uint64
	lastDump    time.Time
	frameIn     [dsp.MaxChannels]float64
	frameOut    [dsp.MaxChannels]float64
	routed      []float64
	syncA       []float64
	syncB       []float64
	syncTracker *analysis.SyncTracker

	syncRequest atomic.Bool
	syncReady   atomic.Bool
	dumpRequest atomic.Bool

	pubMu sync.RWMutex
	snap  telemetry.Snapshot

	now      func() time.Time
	runMu    sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Sink = (*Engine)(nil)
var _ telemetry.Provider = (*Engine)(nil)

// NewEngine builds the pipelines for src. The source must deliver an even
// number of channels; each pair is one ADC, at most telemetry.MaxADCs.
func NewEngine(src Source, opts Options) (*Engine, error) {
	if src == nil {
		return nil, errors.New("audio: nil source")
	}
	channels := src.Channels()
	if channels < 2 || channels%2 != 0 || channels/2 > telemetry.MaxADCs {
		return nil, fmt.Errorf("audio: unsupported channel count %d", channels)
	}
	sr := src.SampleRate()
	frames := src.FramesPerBuffer()
	if sr <= 0 || frames <= 0 {
		return nil, fmt.Errorf("audio: bad source format (%.0f Hz, %d frames)", sr, frames)
	}
	opts.fillDefaults()

	e := &Engine{
		opts:       opts,
		source:     src,
		channels:   channels,
		sampleRate: sr,
		frames:     frames,
		routed:     make([]float64, frames*channels),
		now:        time.Now,
	}

	wfFrames := max(int(sr*opts.WaveformInterval.Seconds()), meter.WaveformBins)
	syncWindow := opts.SyncFrames + opts.SyncSearchRange
	for i := range channels / 2 {
		a, err := newADC(i, &e.opts, sr, frames, wfFrames, syncWindow)
		if err != nil {
			return nil, err
		}
		e.adcs = append(e.adcs, a)
	}
	e.syncA = make([]float64, syncWindow)
	e.syncB = make([]float64, syncWindow)
	e.syncTracker = analysis.NewSyncTracker(analysis.SyncParams{
		SearchRange:      opts.SyncSearchRange,
		ThresholdSamples: opts.SyncThreshold,
		SampleRate:       sr,
	})

	e.snap.SampleRate = sr
	e.snap.ADCCount = len(e.adcs)
	e.snap.Sync = analysis.SyncDiag{InSync: true}
	for i, a := range e.adcs {
		e.snap.ADC[i].DBFS = meter.DBFSFloor
		e.snap.ADC[i].Waveform = a.waveform
		e.snap.ADC[i].Diagnostics = a.monitor.Diagnostics()
	}
	return e, nil
}

// Start begins capture and housekeeping.
func (e *Engine) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.ticker != nil {
		return errAlreadyStarted
	}
	e.epoch = e.now()
	e.lastDump = e.epoch

	if err := e.source.Start(e); err != nil {
		return fmt.Errorf("start source: %w", err)
	}
	if e.opts.Arbiter != nil {
		e.opts.Arbiter.Start()
	}

	e.ticker = time.NewTicker(housekeepingInterval)
	e.doneChan = make(chan struct{})
	e.stopOnce = sync.Once{}
	ticker, done := e.ticker, e.doneChan

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		lastSync := e.now()
		for {
			select {
			case now := <-ticker.C:
				if now.Sub(lastSync) >= e.opts.SyncInterval {
					e.syncRequest.Store(true)
					lastSync = now
				}
				e.housekeeping(now)
			case <-done:
				return
			}
		}
	}()
	logger.Infof("engine started: %d ADC(s), %.0f Hz, %d frames/block", len(e.adcs), e.sampleRate, e.frames)
	return nil
}

// Stop halts capture and housekeeping and finalizes any recording.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	if e.ticker == nil {
		e.runMu.Unlock()
		return nil
	}
	e.stopOnce.Do(func() {
		close(e.doneChan)
		e.ticker.Stop()
		e.ticker = nil
	})
	e.runMu.Unlock()
	e.wg.Wait()

	var errs []error
	if err := e.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}
	if e.opts.Arbiter != nil {
		e.opts.Arbiter.Stop()
	}
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	// Drain a sync window captured just before the source stopped.
	e.housekeeping(e.now())
	return errors.Join(errs...)
}

// Close is Stop for io.Closer users.
func (e *Engine) Close() error { return e.Stop() }

// RequestSync asks the capture path to hand over the next pair of sync
// windows regardless of the sync interval.
func (e *Engine) RequestSync() { e.syncRequest.Store(true) }

// ReadError counts a failed read on every ADC. The error itself is not
// logged here because it arrives on the capture path.
func (e *Engine) ReadError(error) {
	for _, a := range e.adcs {
		a.monitor.RecordReadError()
	}
}

// clock returns the media time of the next frame. It follows the frame
// count rather than the wall clock so replay runs at any speed.
func (e *Engine) clock() time.Time {
	if e.epoch.IsZero() {
		e.epoch = e.now()
		e.lastDump = e.epoch
	}
	return e.epoch.Add(time.Duration(float64(e.frameCount) / e.sampleRate * float64(time.Second)))
}

// Block processes one interleaved capture block. A block longer than
// the configured frames per buffer is processed in buffer-sized chunks.
// Trailing words that do not fill a whole frame are ignored.
func (e *Engine) Block(words []int32) {
	chunk := e.frames * e.channels
	for len(words) > chunk {
		e.block(words[:chunk])
		words = words[chunk:]
	}
	if len(words) >= e.channels || len(words) == 0 {
		e.block(words)
	}
}

func (e *Engine) block(words []int32) {
	now := e.clock()

	if len(words) == 0 {
		for _, a := range e.adcs {
			a.monitor.RecordZeroByteRead()
			a.monitor.RecordMissingBlock(now)
		}
		e.frameCount += uint64(e.frames)
		e.publish(now)
		return
	}

	frames := len(words) / e.channels
	dtMs := float64(frames) / e.sampleRate * 1000

	for _, a := range e.adcs {
		buf := a.words[:frames*2]
		for f := range frames {
			buf[f*2] = words[f*e.channels+a.index*2]
			buf[f*2+1] = words[f*e.channels+a.index*2+1]
		}
		generated := false
		if e.opts.Generator != nil {
			generated = e.opts.Generator.Fill(buf, 2, a.index)
		}
		a.monitor.SetGeneratorActive(generated)
		e.processADC(a, buf, now, dtMs, generated)
	}

	e.captureSync()
	e.record(frames)

	e.frameCount += uint64(frames)
	e.blocks++
	if now.Sub(e.lastDump) >= e.opts.DumpInterval {
		e.dumpRequest.Store(true)
		e.lastDump = now
	}
	e.publish(now)
}

func (e *Engine) processADC(a *adc, buf []int32, now time.Time, dtMs float64, generated bool) {
	allZero := a.monitor.RecordBlock(buf, now)
	if allZero && !generated {
		a.left.Decay(now, dtMs)
		a.right.Decay(now, dtMs)
		a.combined.Decay(now, dtMs)
		a.monitor.RecordSilence()
		a.dbfs = meter.DBFSFloor
		return
	}

	rmsL := meter.ComputeRMS(buf, 0, 2)
	rmsR := meter.ComputeRMS(buf, 1, 2)
	rmsC := meter.CombinedRMS(rmsL, rmsR)
	a.left.Update(rmsL, now, dtMs)
	a.right.Update(rmsR, now, dtMs)
	a.combined.Update(rmsC, now, dtMs)
	a.dbfs = meter.RMSToDBFS(rmsC)
	a.monitor.RecordLevel(a.dbfs)

	// Waveform: accumulate a display period, then reduce to bins.
	for n := 0; n < len(buf); {
		c := copy(a.wfAccum[a.wfFill:], buf[n:])
		a.wfFill += c
		n += c
		if a.wfFill == len(a.wfAccum) {
			meter.Downsample(a.wfAccum, 2, a.waveform[:])
			a.wfFill = 0
		}
	}

	a.spectrum.Process(buf, 2)
	if now.Sub(a.lastFFT) >= e.opts.SpectrumInterval {
		a.spectrum.Update()
		a.lastFFT = now
	}

	for f := 0; f < len(buf); f += 2 {
		a.syncRing.Push(sample.Decode(buf[f]))
	}
}

// captureSync hands the latest left-channel windows of both ADCs to the
// housekeeping goroutine when it asked for them and both are healthy.
func (e *Engine) captureSync() {
	if len(e.adcs) < 2 || !e.syncRequest.Load() || e.syncReady.Load() {
		return
	}
	a, b := e.adcs[0], e.adcs[1]
	if !a.syncRing.Full() || !b.syncRing.Full() {
		return
	}
	if a.monitor.Status() != health.OK || b.monitor.Status() != health.OK {
		return
	}
	a.syncRing.CopyLatest(e.syncA)
	b.syncRing.CopyLatest(e.syncB)
	e.syncRequest.Store(false)
	e.syncReady.Store(true)
}

// record writes the block as the outputs would carry it: through the
// active routing matrix unless globally bypassed.
func (e *Engine) record(frames int) {
	r := e.opts.Recorder
	if r == nil || !r.Recording() {
		return
	}
	out := e.routed[:frames*e.channels]
	fill := func(cfg *dsp.Config) {
		for f := range frames {
			clear(e.frameIn[:])
			for _, a := range e.adcs {
				e.frameIn[a.index*2] = sample.Decode(a.words[f*2])
				e.frameIn[a.index*2+1] = sample.Decode(a.words[f*2+1])
			}
			if cfg == nil || cfg.GlobalBypass {
				e.frameOut = e.frameIn
			} else {
				cfg.Routing.ApplyFrame(e.frameIn[:], e.frameOut[:])
			}
			copy(out[f*e.channels:(f+1)*e.channels], e.frameOut[:e.channels])
		}
	}
	if e.opts.Store != nil {
		e.opts.Store.Read(fill)
	} else {
		fill(nil)
	}
	r.Write(out)
}

func (e *Engine) publish(now time.Time) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.snap.Timestamp = now
	e.snap.Blocks = e.blocks
	for i, a := range e.adcs {
		s := &e.snap.ADC[i]
		s.Levels.Left = a.left.State()
		s.Levels.Right = a.right.State()
		s.Levels.Combined = a.combined.State()
		s.DBFS = a.dbfs
		s.Spectrum = a.spectrum.Spectrum()
		s.Waveform = a.waveform
		s.Diagnostics = a.monitor.Diagnostics()
	}
	if e.opts.Generator != nil {
		e.snap.Generator = e.opts.Generator.Active()
	}
}

// housekeeping runs off the capture path.
func (e *Engine) housekeeping(now time.Time) {
	if e.syncReady.Load() {
		diag := e.syncTracker.Check(e.syncA, e.syncB, now)
		e.syncReady.Store(false)

		e.pubMu.Lock()
		e.snap.Sync = diag
		e.pubMu.Unlock()

		if !diag.InSync {
			logger.Warnf("ADCs out of sync: offset %.1f samples (%.1f us), correlation %.3f",
				diag.PhaseOffsetSamples, diag.PhaseOffsetUs, diag.CorrelationPeak)
		} else {
			logger.Debugf("sync ok: offset %.1f samples", diag.PhaseOffsetSamples)
		}
	}

	if e.dumpRequest.CompareAndSwap(true, false) {
		snap := e.Snapshot()
		for i, a := range snap.ADCs() {
			d := a.Diagnostics
			logger.Infof("ADC%d %s: %.1f dBFS, noise floor %.1f, dominant %.0f Hz, buffers %d, zeros %d, clipped %d, errors %d",
				i+1, d.Status, a.DBFS, d.NoiseFloorDBFS, a.Spectrum.DominantHz,
				d.TotalBuffersRead, d.AllZeroBuffers, d.ClippedSamples, d.I2SReadErrors)
		}
	}

	if r := e.opts.Recorder; r != nil && r.Failed() {
		logger.Errorf("recording stopped after %d consecutive write failures", MaxConsecutiveWriteFailures)
		if err := r.Stop(); err != nil {
			logger.Errorf("closing failed recording: %v", err)
		}
	}
}

// Snapshot returns a copy of the latest published state with the USB and
// DSP summaries filled in.
func (e *Engine) Snapshot() telemetry.Snapshot {
	e.pubMu.RLock()
	snap := e.snap
	e.pubMu.RUnlock()

	if arb := e.opts.Arbiter; arb != nil {
		snap.USB.Enabled = arb.Enabled()
		snap.USB.State = arb.State()
	}
	if p := e.opts.Presence; p != nil {
		snap.USB.Streaming = p.Streaming()
	}
	if st := e.opts.Store; st != nil {
		snap.DSP.Generation = st.Generation()
		st.Read(func(c *dsp.Config) {
			snap.DSP.GlobalBypass = c.GlobalBypass
			snap.DSP.Stages = c.Stages()
			if p, ok := dsp.MatchPreset(c.Routing); ok {
				snap.DSP.Routing = p.String()
			} else {
				snap.DSP.Routing = "custom"
			}
		})
	}
	return snap
}

// Generator returns the attached signal generator, or nil.
func (e *Engine) Generator() *siggen.Generator { return e.opts.Generator }

// Recorder returns the attached recorder, or nil.
func (e *Engine) Recorder() *Recorder { return e.opts.Recorder }

// Source returns the capture source.
func (e *Engine) Source() Source { return e.source }
