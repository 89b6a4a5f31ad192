// SPDX-License-Identifier: MIT
package usbprio

import (
	"sync"
	"sync/atomic"
	"time"

	"amplifier/internal/dsp"
	"amplifier/internal/log"
)

var logger = log.New("usbprio")

// Presence reports whether the alternate digital source is delivering
// audio. It is owned by the transport that owns the USB input.
type Presence interface {
	Streaming() bool
}

// ManualPresence is a Presence driven by a flag, used by the CLI and the
// dashboard to simulate a USB host.
type ManualPresence struct {
	on atomic.Bool
}

func (p *ManualPresence) Streaming() bool { return p.on.Load() }

// Set changes the reported presence.
func (p *ManualPresence) Set(streaming bool) { p.on.Store(streaming) }

// Toggle flips the reported presence and returns the new value.
func (p *ManualPresence) Toggle() bool {
	for {
		old := p.on.Load()
		if p.on.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Arbiter owns the arbiter state and the saved routing. Update is the
// only mutator; it may be driven by the Start poll loop or directly.
type Arbiter struct {
	store    *dsp.Store
	presence Presence
	timing   Timing
	left     int
	right    int
	interval time.Duration

	enabled atomic.Bool

	mu            sync.Mutex
	state         State
	saved         dsp.RoutingMatrix
	hasSaved      bool
	streamStart   time.Time
	streamStop    time.Time
	prevStreaming bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	runMu    sync.Mutex
}

// Options configure an Arbiter.
type Options struct {
	Timing       Timing
	USBLeft      int
	USBRight     int
	PollInterval time.Duration
	Enabled      bool
}

// DefaultOptions returns the standard timing and USB channels.
func DefaultOptions() Options {
	return Options{
		Timing:       DefaultTiming,
		USBLeft:      USBLeft,
		USBRight:     USBRight,
		PollInterval: 10 * time.Millisecond,
	}
}

// New returns an idle arbiter.
func New(store *dsp.Store, presence Presence, opts Options) *Arbiter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	a := &Arbiter{
		store:    store,
		presence: presence,
		timing:   opts.Timing,
		left:     opts.USBLeft,
		right:    opts.USBRight,
		interval: opts.PollInterval,
	}
	a.enabled.Store(opts.Enabled)
	return a
}

// SetEnabled turns the feature on or off. It takes effect on the next
// Update.
func (a *Arbiter) SetEnabled(on bool) { a.enabled.Store(on) }

// Enabled reports whether the feature is on.
func (a *Arbiter) Enabled() bool { return a.enabled.Load() }

// State returns the current state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Update samples presence, tracks its edges, runs Step and applies the
// routing effects through the store. It returns the step result.
func (a *Arbiter) Update(now time.Time) Result {
	streaming := a.presence.Streaming()

	a.mu.Lock()
	defer a.mu.Unlock()

	if streaming && !a.prevStreaming {
		a.streamStart = now
	} else if !streaming && a.prevStreaming {
		a.streamStop = now
	}
	a.prevStreaming = streaming

	res := Step(a.state, a.enabled.Load(), streaming, now, a.streamStart, a.streamStop, a.timing)

	if res.SaveMatrix && !a.hasSaved {
		a.saved = a.store.Snapshot().Routing
		a.hasSaved = true
		logger.Infof("saved routing matrix")
	}
	if res.ApplyUSBRouting {
		usb := BuildUSBRouting(a.left, a.right)
		_ = a.store.Mutate(func(c *dsp.Config) error {
			c.Routing = usb
			return nil
		})
		logger.Infof("applied USB routing (in %d/%d -> out 0/1)", a.left, a.right)
	}
	if res.RestoreMatrix && a.hasSaved {
		saved := a.saved
		_ = a.store.Mutate(func(c *dsp.Config) error {
			c.Routing = saved
			return nil
		})
		a.hasSaved = false
		logger.Infof("restored previous routing matrix")
	}

	if res.Next != a.state {
		logger.Debugf("state %s -> %s", a.state, res.Next)
	}
	a.state = res.Next
	return res
}

// Start polls Update on the configured interval until Stop.
func (a *Arbiter) Start() {
	a.runMu.Lock()
	if a.ticker != nil {
		a.runMu.Unlock()
		return
	}
	a.ticker = time.NewTicker(a.interval)
	a.doneChan = make(chan struct{})
	a.stopOnce = sync.Once{}
	ticker, done := a.ticker, a.doneChan
	a.runMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case now := <-ticker.C:
				a.Update(now)
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the poll loop and waits for it to exit. It is safe to call
// more than once.
func (a *Arbiter) Stop() {
	a.runMu.Lock()
	if a.ticker == nil {
		a.runMu.Unlock()
		return
	}
	a.stopOnce.Do(func() {
		close(a.doneChan)
		a.ticker.Stop()
		a.ticker = nil
	})
	a.runMu.Unlock()
	a.wg.Wait()
}
