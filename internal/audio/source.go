// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"sync"
	"time"

	"amplifier/internal/siggen"
)

// Sink receives capture blocks. Block is called from the source's capture
// goroutine with interleaved 24-in-32 words; the slice is only valid for
// the duration of the call. An empty block is a read that returned no
// data. ReadError reports a failed read.
type Sink interface {
	Block(words []int32)
	ReadError(err error)
}

// Source is a capture boundary: hardware, a file or a generator.
type Source interface {
	Start(sink Sink) error
	Stop() error
	Channels() int
	SampleRate() float64
	FramesPerBuffer() int
}

var errAlreadyStarted = errors.New("source already started")

// pacer delivers blocks from fill at the real-time block rate, or as fast
// as possible when interval is zero, until stopped or fill reports false.
type pacer struct {
	interval time.Duration
	buf      []int32

	mu       sync.Mutex
	doneChan chan struct{}
	finished chan struct{}
	wg       sync.WaitGroup
}

func newPacer(frames, channels int, sampleRate float64, paced bool) *pacer {
	p := &pacer{buf: make([]int32, frames*channels)}
	if paced {
		p.interval = time.Duration(float64(frames) / sampleRate * float64(time.Second))
	}
	return p
}

func (p *pacer) start(sink Sink, fill func([]int32) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doneChan != nil {
		return errAlreadyStarted
	}
	p.doneChan = make(chan struct{})
	p.finished = make(chan struct{})
	done, finished := p.doneChan, p.finished

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(finished)

		var tick <-chan time.Time
		if p.interval > 0 {
			t := time.NewTicker(p.interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			if tick != nil {
				select {
				case <-tick:
				case <-done:
					return
				}
			} else {
				select {
				case <-done:
					return
				default:
				}
			}
			if !fill(p.buf) {
				return
			}
			sink.Block(p.buf)
		}
	}()
	return nil
}

func (p *pacer) stop() {
	p.mu.Lock()
	if p.doneChan == nil {
		p.mu.Unlock()
		return
	}
	close(p.doneChan)
	p.doneChan = nil
	p.mu.Unlock()
	p.wg.Wait()
}

// done is closed when the delivery goroutine exits.
func (p *pacer) done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// SiggenSource produces silent blocks at the real-time rate and turns the
// generator on, so the generator alone drives the input.
type SiggenSource struct {
	gen        *siggen.Generator
	sampleRate float64
	frames     int
	channels   int
	p          *pacer
}

// NewSiggenSource returns a generator-driven source.
func NewSiggenSource(gen *siggen.Generator, sampleRate float64, framesPerBuffer, channels int) *SiggenSource {
	return &SiggenSource{
		gen:        gen,
		sampleRate: sampleRate,
		frames:     framesPerBuffer,
		channels:   channels,
		p:          newPacer(framesPerBuffer, channels, sampleRate, true),
	}
}

func (s *SiggenSource) Start(sink Sink) error {
	s.gen.SetActive(true)
	return s.p.start(sink, func(buf []int32) bool {
		clear(buf)
		return true
	})
}

func (s *SiggenSource) Stop() error {
	s.p.stop()
	s.gen.SetActive(false)
	return nil
}

func (s *SiggenSource) Channels() int        { return s.channels }
func (s *SiggenSource) SampleRate() float64  { return s.sampleRate }
func (s *SiggenSource) FramesPerBuffer() int { return s.frames }

var _ Source = (*SiggenSource)(nil)
