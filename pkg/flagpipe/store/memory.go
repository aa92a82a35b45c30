package store

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory flag store.
// It is the default store and is also used in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	flags  map[string]storedFlag
	closed bool
}

// storedFlag keeps tombstones so stale upserts cannot resurrect a flag.
type storedFlag struct {
	flag    Flag
	deleted bool
}

// NewMemoryStore creates a new in-memory flag store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[string]storedFlag),
	}
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(flag Flag) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}

	if existing, ok := m.flags[flag.Key]; ok && existing.flag.Version >= flag.Version {
		return false, nil
	}

	m.flags[flag.Key] = storedFlag{flag: flag}
	return true, nil
}

// Get implements Store.
func (m *MemoryStore) Get(key string) (Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Flag{}, ErrStoreClosed
	}

	stored, ok := m.flags[key]
	if !ok || stored.deleted {
		return Flag{}, ErrNotFound
	}
	return stored.flag, nil
}

// All implements Store.
func (m *MemoryStore) All() ([]Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	flags := make([]Flag, 0, len(m.flags))
	for _, stored := range m.flags {
		if !stored.deleted {
			flags = append(flags, stored.flag)
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Key < flags[j].Key })
	return flags, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if existing, ok := m.flags[key]; ok && existing.flag.Version >= version {
		return nil
	}

	m.flags[key] = storedFlag{flag: Flag{Key: key, Version: version}, deleted: true}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.flags = nil
	return nil
}

// Len returns the number of live flags.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, stored := range m.flags {
		if !stored.deleted {
			count++
		}
	}
	return count
}
