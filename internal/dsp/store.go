// SPDX-License-Identifier: MIT
package dsp

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Store holds two Config snapshots, one active and one inactive, and a
// single atomic selector naming the active one.
//
// Readers never block: Read pins the active slot for the duration of a
// callback, and writers wait for pinned readers to leave a slot before
// overwriting it. Writers follow copy, mutate, swap. Mutate runs that
// sequence under a writer mutex. The raw CopyActiveToInactive, Inactive
// and Swap primitives are not serialized: two writers interleaving them
// lose one writer's change (last swap wins).
type Store struct {
	slots   [2]Config
	readers [2]atomic.Int32
	active  atomic.Int32
	gen     atomic.Uint64

	writer sync.Mutex
}

// NewStore returns a store whose both slots hold initial.
func NewStore(initial Config) *Store {
	initial.Recompute()
	s := &Store{}
	s.slots[0] = initial
	s.slots[1] = initial
	return s
}

// Read calls fn with the active configuration. The snapshot stays intact
// for the duration of fn even if a writer swaps concurrently. fn must not
// retain the pointer or call a writer method.
func (s *Store) Read(fn func(*Config)) {
	for {
		idx := s.active.Load()
		s.readers[idx].Add(1)
		if s.active.Load() == idx {
			fn(&s.slots[idx])
			s.readers[idx].Add(-1)
			return
		}
		s.readers[idx].Add(-1)
	}
}

// Snapshot returns a copy of the active configuration.
func (s *Store) Snapshot() Config {
	var c Config
	s.Read(func(active *Config) { c = *active })
	return c
}

// Active returns the active slot. The pointer is only stable until the
// second swap after the call; long-lived readers use Read or Snapshot.
func (s *Store) Active() *Config {
	return &s.slots[s.active.Load()]
}

// Inactive returns the scratch slot. It is only meaningful between
// CopyActiveToInactive and Swap.
func (s *Store) Inactive() *Config {
	return &s.slots[1-s.active.Load()]
}

// CopyActiveToInactive overwrites the scratch slot with the active
// configuration once no reader is pinned to it.
func (s *Store) CopyActiveToInactive() {
	src := s.active.Load()
	dst := 1 - src
	for s.readers[dst].Load() != 0 {
		runtime.Gosched()
	}
	s.slots[dst] = s.slots[src]
}

// Swap makes the scratch slot active in a single atomic store.
func (s *Store) Swap() {
	s.active.Store(1 - s.active.Load())
	s.gen.Add(1)
}

// Mutate performs copy, fn, recompute, swap as one critical section with
// respect to other Mutate callers. If fn returns an error nothing is
// swapped and the active configuration is unchanged.
func (s *Store) Mutate(fn func(*Config) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	s.CopyActiveToInactive()
	cfg := s.Inactive()
	if err := fn(cfg); err != nil {
		return err
	}
	cfg.Recompute()
	s.Swap()
	return nil
}

// Generation counts swaps since creation.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}
