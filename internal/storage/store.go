package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Openmesh-Network/openrd-indexer/internal/metrics"
)

// Store is a generic entity store over one logical collection. The value is
// lazily loaded from the backend on first access and cached; Update serializes
// every read-modify-write against the same in-memory value, then persists the
// full serialized collection before returning.
//
// A persistence failure propagates to the caller while the in-memory value
// stays mutated; the next successful Update reconciles the durable copy. A
// crash between mutation and persistence loses at most the last update and
// never produces a partial write.
type Store[T any] struct {
	name    string
	backend Backend
	empty   func() T

	mu     sync.Mutex
	loaded bool
	value  T
}

// NewStore creates a store over the named collection. empty constructs the
// collection's default value when nothing was persisted yet.
func NewStore[T any](name string, backend Backend, empty func() T) *Store[T] {
	return &Store[T]{name: name, backend: backend, empty: empty}
}

// Name returns the collection name.
func (s *Store[T]) Name() string { return s.name }

func (s *Store[T]) load() error {
	if s.loaded {
		return nil
	}

	data, err := s.backend.Load(s.name)
	if err == ErrNotFound {
		s.value = s.empty()
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	value := s.empty()
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("failed to decode collection %s: %w", s.name, err)
	}
	s.value = value
	s.loaded = true
	return nil
}

// Get returns the current in-memory value, loading it from the backend on
// first access. The returned value is the live cached object: callers that
// run concurrently with Update must use View instead.
func (s *Store[T]) Get() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// View runs fn with read access to the current value, serialized against
// updates. fn must not retain references past its return.
func (s *Store[T]) View(fn func(T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	fn(s.value)
	return nil
}

// Update runs mutate against the cached value and persists the result. No two
// mutators ever interleave on the same store, and mutations within one call
// observe each other (the mutator receives the same in-memory object).
// Serialization only starts after the mutator returns.
func (s *Store[T]) Update(mutate func(T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	mutate(s.value)

	return s.persistLocked()
}

// Flush re-persists the current in-memory value. Called on shutdown so a
// failed earlier persist does not leave the durable copy behind.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil
	}
	return s.persistLocked()
}

func (s *Store[T]) persistLocked() error {
	data, err := json.Marshal(s.value)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", s.name, err)
	}

	timer := metrics.StorePersistTimer(s.name)
	defer timer.ObserveDuration()

	if err := s.backend.Save(s.name, data); err != nil {
		metrics.StorePersistFailures.WithLabelValues(s.name).Inc()
		return err
	}
	return nil
}
