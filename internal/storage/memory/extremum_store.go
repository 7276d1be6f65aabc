// Package memory provides in-memory implementations for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("memory store closed")

// ExtremumStore keeps watermarks in a map. It is not durable across restarts
// and is meant for tests and dry runs.
type ExtremumStore struct {
	mu     sync.RWMutex
	values map[string]*float64
	closed bool
}

// NewExtremumStore constructs an ExtremumStore.
func NewExtremumStore() *ExtremumStore {
	return &ExtremumStore{values: make(map[string]*float64)}
}

// Init adds a null entry for each missing key.
func (s *ExtremumStore) Init(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, key := range keys {
		if _, ok := s.values[key]; !ok {
			s.values[key] = nil
		}
	}
	return nil
}

// Get returns a copy of the stored value, or nil when unset.
func (s *ExtremumStore) Get(_ context.Context, key string) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v := s.values[key]
	if v == nil {
		return nil, nil
	}
	out := *v
	return &out, nil
}

// Set upserts the value for key.
func (s *ExtremumStore) Set(_ context.Context, key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	v := value
	s.values[key] = &v
	return nil
}

// Ping reports whether the store is open.
func (s *ExtremumStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed.
func (s *ExtremumStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Keys returns the number of keys present, including null ones.
func (s *ExtremumStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
