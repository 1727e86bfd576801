package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/soulecho/pkg/persist"
	"github.com/MrWong99/soulecho/pkg/provider/live"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by the Create and Open methods when no
// factory is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// EchoFactory builds a soul echo generation backend.
type EchoFactory func(ctx context.Context, entry ProviderEntry) (llm.Provider, error)

// LiveFactory builds a realtime voice backend.
type LiveFactory func(ctx context.Context, entry ProviderEntry) (live.Provider, error)

// StorageFactory opens a key-value backend.
type StorageFactory func(ctx context.Context, cfg StorageConfig) (persist.KV, error)

// Registry maps backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	echo    map[string]EchoFactory
	live    map[string]LiveFactory
	storage map[StorageDriver]StorageFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		echo:    make(map[string]EchoFactory),
		live:    make(map[string]LiveFactory),
		storage: make(map[StorageDriver]StorageFactory),
	}
}

// RegisterEcho registers an echo backend factory under name, replacing any
// previous one.
func (r *Registry) RegisterEcho(name string, f EchoFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.echo[name] = f
}

// RegisterLive registers a live backend factory under name.
func (r *Registry) RegisterLive(name string, f LiveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = f
}

// RegisterStorage registers a storage factory for driver.
func (r *Registry) RegisterStorage(driver StorageDriver, f StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[driver] = f
}

// CreateEcho builds the echo backend registered under entry.Name.
func (r *Registry) CreateEcho(ctx context.Context, entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.echo[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: echo/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("config: create echo/%s: %w", entry.Name, err)
	}
	return p, nil
}

// CreateLive builds the live backend registered under entry.Name.
func (r *Registry) CreateLive(ctx context.Context, entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	f, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("config: create live/%s: %w", entry.Name, err)
	}
	return p, nil
}

// OpenStorage opens the backend registered for cfg.Driver.
func (r *Registry) OpenStorage(ctx context.Context, cfg StorageConfig) (persist.KV, error) {
	r.mu.RLock()
	f, ok := r.storage[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: storage/%q", ErrProviderNotRegistered, cfg.Driver)
	}
	kv, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: open storage/%s: %w", cfg.Driver, err)
	}
	return kv, nil
}

// EchoNames returns the registered echo backend names, sorted.
func (r *Registry) EchoNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.echo))
}

// LiveNames returns the registered live backend names, sorted.
func (r *Registry) LiveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.live))
}
