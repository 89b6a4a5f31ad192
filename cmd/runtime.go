// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"amplifier/internal/audio"
	"amplifier/internal/config"
	"amplifier/internal/dsp"
	"amplifier/internal/log"
	"amplifier/internal/meter"
	"amplifier/internal/siggen"
	"amplifier/internal/telemetry"
	"amplifier/internal/transport"
	"amplifier/internal/transport/udp"
	"amplifier/internal/tui"
	"amplifier/internal/usbprio"
)

var logger = log.New("runtime")

// RuntimeOptions select how a Runtime is assembled.
type RuntimeOptions struct {
	Headless bool // log telemetry instead of running the dashboard
	Replay   bool // deliver a WAV file once, as fast as possible, with no transports
}

// Runtime is the assembled controller: capture source, engine, DSP
// configuration store, USB arbiter, generator, recorder and telemetry
// publishers.
type Runtime struct {
	Config    *config.Config
	Source    audio.Source
	Store     *dsp.Store
	Presence  *usbprio.ManualPresence
	Arbiter   *usbprio.Arbiter
	Generator *siggen.Generator
	Recorder  *audio.Recorder
	Engine    *audio.Engine

	publishers []*telemetry.Publisher
	recording  string
}

// openSource creates the configured capture source. The generator is
// created here too because the siggen source needs it up front; for the
// other sources it follows the source's sample rate.
func openSource(cfg *config.Config, replay bool) (audio.Source, *siggen.Generator, error) {
	a := cfg.Audio
	var (
		src audio.Source
		gen *siggen.Generator
		err error
	)
	switch a.Source {
	case config.SourceSiggen:
		if gen, err = siggen.New(a.SampleRate); err != nil {
			return nil, nil, err
		}
		src = audio.NewSiggenSource(gen, a.SampleRate, a.FramesPerBuffer, a.InputChannels)
	case config.SourceWAV:
		src, err = audio.OpenWav(a.WAVPath, audio.WavOptions{
			FramesPerBuffer: a.FramesPerBuffer,
			Loop:            a.WAVLoop && !replay,
			Paced:           !replay,
		})
	case config.SourcePortAudio:
		src, err = audio.NewPortAudioSource(audio.PortAudioOptions{
			DeviceID:        a.InputDevice,
			Channels:        a.InputChannels,
			SampleRate:      a.SampleRate,
			FramesPerBuffer: a.FramesPerBuffer,
			LowLatency:      a.LowLatency,
		})
	default:
		err = fmt.Errorf("%w: %q", config.ErrSource, a.Source)
	}
	if err != nil {
		return nil, nil, err
	}
	if gen == nil {
		if gen, err = siggen.New(src.SampleRate()); err != nil {
			return nil, nil, err
		}
	}
	return src, gen, nil
}

// NewRuntime assembles the controller from cfg. PortAudio must already be
// initialized when the portaudio source is configured.
func NewRuntime(cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	src, gen, err := openSource(cfg, opts.Replay)
	if err != nil {
		return nil, fmt.Errorf("capture source: %w", err)
	}

	params, err := cfg.SigGenParams()
	if err != nil {
		return nil, err
	}
	if err := gen.Configure(params); err != nil {
		return nil, fmt.Errorf("signal generator: %w", err)
	}
	if cfg.SigGen.Enabled {
		gen.SetActive(true)
	}

	rt := &Runtime{
		Config:    cfg,
		Source:    src,
		Store:     dsp.NewStore(dsp.NewConfig(src.SampleRate())),
		Presence:  &usbprio.ManualPresence{},
		Generator: gen,
		Recorder:  audio.NewRecorder(src.Channels(), src.SampleRate(), cfg.Recording.BitDepth),
	}
	rt.Arbiter = usbprio.New(rt.Store, rt.Presence, cfg.USBOptions())

	sp := cfg.SyncParams()
	an := cfg.Analysis
	rt.Engine, err = audio.NewEngine(src, audio.Options{
		Ballistics:       cfg.Ballistics(),
		Thresholds:       cfg.Health,
		FFTSize:          an.FFTSize,
		Window:           cfg.Window(),
		SpectrumInterval: an.SpectrumInterval,
		WaveformInterval: an.WaveformInterval,
		SyncInterval:     an.SyncInterval,
		SyncFrames:       an.SyncFrames,
		SyncSearchRange:  sp.SearchRange,
		SyncThreshold:    sp.ThresholdSamples,
		DumpInterval:     an.DumpInterval,
		Store:            rt.Store,
		Arbiter:          rt.Arbiter,
		Presence:         rt.Presence,
		Generator:        gen,
		Recorder:         rt.Recorder,
	})
	if err != nil {
		return nil, err
	}

	if !opts.Replay {
		if err := rt.addPublishers(opts.Headless); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) addPublishers(headless bool) error {
	t := rt.Config.Transport
	if t.UDPEnabled {
		sender, err := udp.NewSender(t.UDPTargetAddress)
		if err != nil {
			return err
		}
		pub, err := telemetry.NewPublisher(t.UDPSendInterval, rt.Engine, sender)
		if err != nil {
			return err
		}
		rt.publishers = append(rt.publishers, pub)
		logger.Infof("udp telemetry to %s every %s", t.UDPTargetAddress, t.UDPSendInterval)
	}

	var transports []transport.Transport
	if t.WSEnabled {
		transports = append(transports, transport.NewWebSocketTransport(t.WSAddress))
	}
	if headless {
		transports = append(transports, transport.NewLoggingTransport(t.LogEvery))
	}
	if len(transports) > 0 {
		pub, err := telemetry.NewPublisher(telemetry.DefaultInterval, rt.Engine, transports...)
		if err != nil {
			return err
		}
		rt.publishers = append(rt.publishers, pub)
	}
	return nil
}

// Start begins capture, recording when enabled, and publishing.
func (rt *Runtime) Start() error {
	if rt.Config.Recording.Enabled {
		name, err := rt.Recorder.StartInDir(rt.Config.Recording.OutputDir, time.Now())
		if err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
		rt.recording = name
	}
	if err := rt.Engine.Start(); err != nil {
		return err
	}
	for _, p := range rt.publishers {
		p.Start()
	}
	return nil
}

// Stop halts publishing and capture and closes the transports.
func (rt *Runtime) Stop() error {
	var errs []error
	for _, p := range rt.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.Engine.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recording returns the file being recorded to, or "".
func (rt *Runtime) Recording() string { return rt.recording }

// Controls returns the dashboard controls bound to this runtime.
func (rt *Runtime) Controls() tui.Controls {
	return tui.Controls{
		Presence:  rt.Presence,
		Arbiter:   rt.Arbiter,
		Store:     rt.Store,
		Generator: rt.Generator,
	}
}

// Replay runs the pipeline over cfg's WAV file once and writes a summary
// of the final snapshot to w.
func Replay(cfg *config.Config, w io.Writer) error {
	rt, err := NewRuntime(cfg, RuntimeOptions{Replay: true, Headless: true})
	if err != nil {
		return err
	}
	wav, ok := rt.Source.(*audio.WavSource)
	if !ok {
		return fmt.Errorf("replay needs a wav source, got %T", rt.Source)
	}

	// The first full window is checked for phase sync; Stop drains it.
	rt.Engine.RequestSync()
	if err := rt.Start(); err != nil {
		return err
	}
	<-wav.Done()
	if err := rt.Stop(); err != nil {
		return err
	}

	snap := rt.Engine.Snapshot()
	logger.Debugf("replayed %d frames from %s", wav.Frames(), cfg.Audio.WAVPath)
	WriteSummary(w, &snap, cfg.Meter.VRef)
	if rt.Recording() != "" {
		fmt.Fprintf(w, "Recording saved to: %s\n", rt.Recording())
	}
	return nil
}

// WriteSummary prints a human-readable digest of a snapshot.
func WriteSummary(w io.Writer, s *telemetry.Snapshot, vref float64) {
	fmt.Fprintf(w, "\nBlocks: %d at %.0f Hz, status %s\n", s.Blocks, s.SampleRate, s.Status())
	for i, a := range s.ADCs() {
		d := a.Diagnostics
		fmt.Fprintf(w, "\nADC%d [%s]\n", i+1, d.Status)
		fmt.Fprintf(w, "  Level:     %.2f dBFS (%.3f Vrms), peak hold %.3f\n",
			a.DBFS, meter.RMSToVrms(a.Levels.Combined.RMS, vref), a.Levels.Combined.Peak)
		fmt.Fprintf(w, "  L/R VU:    %.3f / %.3f\n", a.Levels.Left.VU, a.Levels.Right.VU)
		fmt.Fprintf(w, "  Spectrum:  dominant %.0f Hz, SNR %.1f dB, SFDR %.1f dB\n",
			a.Spectrum.DominantHz, a.Spectrum.SNRDB, a.Spectrum.SFDRDB)
		fmt.Fprintf(w, "  Health:    noise floor %.1f dBFS, DC %.5f, buffers %d, zero %d, clipped %d, errors %d\n",
			d.NoiseFloorDBFS, d.DCOffset, d.TotalBuffersRead, d.AllZeroBuffers, d.ClippedSamples, d.I2SReadErrors)
	}
	if s.ADCCount > 1 {
		fmt.Fprintf(w, "\nSync: offset %.1f samples (%.1f us), correlation %.3f, in sync %v, checks %d\n",
			s.Sync.PhaseOffsetSamples, s.Sync.PhaseOffsetUs, s.Sync.CorrelationPeak, s.Sync.InSync, s.Sync.CheckCount)
	}
}
