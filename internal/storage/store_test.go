package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*MemoryBackend
	failSave bool
}

func (f *failingBackend) Save(name string, data []byte) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Save(name, data)
}

func TestStore_EmptyOnFirstLoad(t *testing.T) {
	t.Parallel()

	store := NewStore("counters", NewMemoryBackend(), func() map[string]int {
		return make(map[string]int)
	})

	value, err := store.Get()
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestStore_UpdatePersists(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	store := NewStore("counters", backend, func() map[string]int {
		return make(map[string]int)
	})

	require.NoError(t, store.Update(func(counters map[string]int) {
		counters["a"] = 40
	}))
	require.NoError(t, store.Update(func(counters map[string]int) {
		counters["a"] += 2
	}))

	// A fresh store over the same backend observes the persisted value.
	reloaded := NewStore("counters", backend, func() map[string]int {
		return make(map[string]int)
	})
	value, err := reloaded.Get()
	require.NoError(t, err)
	require.Equal(t, 42, value["a"])
}

func TestStore_FailedPersistKeepsMutation(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	store := NewStore("counters", backend, func() map[string]int {
		return make(map[string]int)
	})

	backend.failSave = true
	require.Error(t, store.Update(func(counters map[string]int) {
		counters["a"] = 1
	}))

	// The in-memory value kept the mutation, and the next successful persist
	// reconciles the durable copy.
	backend.failSave = false
	require.NoError(t, store.Flush())

	reloaded := NewStore("counters", backend, func() map[string]int {
		return make(map[string]int)
	})
	value, err := reloaded.Get()
	require.NoError(t, err)
	require.Equal(t, 1, value["a"])
}

func TestStore_View(t *testing.T) {
	t.Parallel()

	store := NewStore("counters", NewMemoryBackend(), func() map[string]int {
		return map[string]int{"a": 7}
	})

	var seen int
	require.NoError(t, store.View(func(counters map[string]int) {
		seen = counters["a"]
	}))
	require.Equal(t, 7, seen)
}

func TestStore_FlushBeforeLoadIsNoop(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failSave: true}
	store := NewStore("counters", backend, func() map[string]int {
		return make(map[string]int)
	})

	require.NoError(t, store.Flush())
}
