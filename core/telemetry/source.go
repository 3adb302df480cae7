// Package telemetry defines the sensor sample source the prognoser reads
// from. Lookups are non-blocking: samples are pre-cached by whichever feed
// populates the store.
package telemetry

import (
	"errors"
	"sync"
)

// ErrNoSample reports that a signal has no cached sample yet.
var ErrNoSample = errors.New("no telemetry sample")

// Sample is a timestamped scalar reading. TimeMS is milliseconds since the
// feed's epoch; the prognoser converts to relative seconds itself.
type Sample struct {
	Value  float64
	TimeMS float64
}

// Source looks up the latest sample for a named signal.
type Source interface {
	Lookup(name string) (Sample, bool)
}

// Store is a concurrent in-memory Source, written by a telemetry feed and
// read by the prognoser.
type Store struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{samples: make(map[string]Sample)}
}

// Set caches the latest sample for the named signal.
func (s *Store) Set(name string, sample Sample) {
	s.mu.Lock()
	s.samples[name] = sample
	s.mu.Unlock()
}

// Lookup implements Source.
func (s *Store) Lookup(name string) (Sample, bool) {
	s.mu.RLock()
	sample, ok := s.samples[name]
	s.mu.RUnlock()
	return sample, ok
}

// Names returns the signals currently cached.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.samples))
	for n := range s.samples {
		names = append(names, n)
	}
	return names
}
