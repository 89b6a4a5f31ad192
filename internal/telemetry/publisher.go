// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"amplifier/internal/log"
	"amplifier/internal/transport"
)

var logger = log.New("telemetry")

// DefaultInterval is used when a publisher is created with a
// non-positive interval.
const DefaultInterval = 50 * time.Millisecond

// Publisher periodically pulls a Snapshot from its Provider and sends it
// to every transport. It runs in its own goroutine between Start and Stop.
type Publisher struct {
	provider   Provider
	transports []transport.Transport
	interval   time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewPublisher returns a stopped publisher.
func NewPublisher(interval time.Duration, provider Provider, transports ...transport.Transport) (*Publisher, error) {
	if provider == nil {
		return nil, errors.New("telemetry: provider cannot be nil")
	}
	if interval <= 0 {
		logger.Warnf("invalid interval %s, using %s", interval, DefaultInterval)
		interval = DefaultInterval
	}
	return &Publisher{
		provider:   provider,
		transports: transports,
		interval:   interval,
	}, nil
}

// Start launches the publish loop. Calling Start while running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Infof("publishing every %s to %d transport(s)", p.interval, len(p.transports))
		for {
			select {
			case <-ticker.C:
				p.PublishOnce()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the publish loop and waits for it. It is safe to call more
// than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debugf("stopped after %d sends (%d failed)", p.sent.Load(), p.failed.Load())
	return nil
}

// PublishOnce sends the current snapshot to every transport and returns
// the joined send errors.
func (p *Publisher) PublishOnce() error {
	snap := p.provider.Snapshot()

	var errs []error
	for _, t := range p.transports {
		if err := t.Send(snap); err != nil {
			p.failed.Add(1)
			errs = append(errs, fmt.Errorf("%T: %w", t, err))
			continue
		}
		p.sent.Add(1)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Debugf("send failed: %v", err)
		return err
	}
	return nil
}

// Sent returns the number of successful and failed sends.
func (p *Publisher) Sent() (ok, failed uint64) {
	return p.sent.Load(), p.failed.Load()
}

// Close stops the publisher and closes every transport.
func (p *Publisher) Close() error {
	p.Stop()
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ interface{ Close() error } = (*Publisher)(nil)
