// Package persist defines the flat key-value storage used to snapshot player
// progress, with file and in-memory backends. SQL backends live in the
// persist/sqlite and persist/postgres sub-packages.
//
// Every backend is last-write-wins on a single record per key.
package persist

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by [KV.Get] when no value is stored under the key.
var ErrNotFound = errors.New("persist: not found")

// KV is a durable flat key-value store.
//
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns the value stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// Compile-time interface assertions.
var (
	_ KV = (*MemoryKV)(nil)
	_ KV = (*FileKV)(nil)
)

// MemoryKV is a process-local [KV]. The zero value is ready to use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{}
}

// Get implements [KV]. The returned slice is a copy.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements [KV].
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Close implements [KV]. It is a no-op.
func (m *MemoryKV) Close() error { return nil }
