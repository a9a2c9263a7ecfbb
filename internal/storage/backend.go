// Package storage provides the entity stores: generic, serialized
// read-modify-persist containers over one logical collection each, backed by a
// pluggable durable backend.
package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Backend.Load when a collection has never been
// persisted.
var ErrNotFound = errors.New("collection not found")

// Backend persists one serialized JSON record per collection name.
type Backend interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
}

// MemoryBackend keeps records in memory. Used in tests and usable as a
// throwaway backend for dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBackend) Save(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.records[name] = stored
	return nil
}
