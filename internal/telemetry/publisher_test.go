// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"amplifier/internal/health"
	"amplifier/pkg/utils"
)

type failingTransport struct{ closed bool }

func (f *failingTransport) Send(any) error { return errors.New("unreachable") }
func (f *failingTransport) Close() error  { f.closed = true; return nil }

func TestPublishOnce(t *testing.T) {
	var calls atomic.Int32
	provider := ProviderFunc(func() Snapshot {
		calls.Add(1)
		return Snapshot{ADCCount: 1, SampleRate: 48000}
	})
	mock := &utils.MockTransport{}
	bad := &failingTransport{}

	p, err := NewPublisher(time.Second, provider, mock, bad)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.PublishOnce(); err == nil {
		t.Error("PublishOnce did not report the failing transport")
	}

	last, count := mock.Sent()
	if count != 1 {
		t.Fatalf("mock received %d sends, want 1", count)
	}
	snap, ok := last.(Snapshot)
	if !ok || snap.SampleRate != 48000 {
		t.Errorf("mock received %#v", last)
	}
	if ok, failed := p.Sent(); ok != 1 || failed != 1 {
		t.Errorf("Sent() = %d, %d", ok, failed)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !mock.Closed || !bad.closed {
		t.Error("Close did not close every transport")
	}
}

func TestPublisherLoop(t *testing.T) {
	mock := &utils.MockTransport{}
	p, err := NewPublisher(time.Millisecond, ProviderFunc(func() Snapshot { return Snapshot{} }), mock)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, n := mock.Sent(); n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("publisher never sent")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	_, n := mock.Sent()
	time.Sleep(10 * time.Millisecond)
	if _, after := mock.Sent(); after != n {
		t.Errorf("publisher kept sending after Stop: %d -> %d", n, after)
	}
	p.Stop()
}

func TestNewPublisherDefaults(t *testing.T) {
	if _, err := NewPublisher(time.Second, nil); err == nil {
		t.Error("nil provider accepted")
	}
	p, err := NewPublisher(0, ProviderFunc(func() Snapshot { return Snapshot{} }))
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %s, want %s", p.interval, DefaultInterval)
	}
}

func TestSnapshotStatus(t *testing.T) {
	var s Snapshot
	s.ADCCount = 2
	s.ADC[0].Diagnostics.Status = health.NoiseOnly
	s.ADC[1].Diagnostics.Status = health.Clipping
	if got := s.Status(); got != health.Clipping {
		t.Errorf("Status() = %s, want CLIPPING", got)
	}

	s.ADCCount = 1
	if got := s.Status(); got != health.NoiseOnly {
		t.Errorf("Status() with one ADC = %s, want NOISE_ONLY", got)
	}
	if len(s.ADCs()) != 1 {
		t.Errorf("ADCs() len = %d", len(s.ADCs()))
	}

	s.ADCCount = 9
	if len(s.ADCs()) != MaxADCs {
		t.Errorf("ADCs() not clamped")
	}
}
