package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/internal/resilience"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

// ErrNoEchoBackend is returned when none of the configured echo backends
// could be built.
var ErrNoEchoBackend = errors.New("app: no echo backend available")

var _ llm.Provider = (*EchoChain)(nil)

// EchoChain is the echo generation backend handed to the game. It builds a
// [resilience.LLMFallback] over providers.echo on first use with the current
// credential and rebuilds it whenever the key changes, so a key entered
// mid-session takes effect on the next reflection.
type EchoChain struct {
	reg     *config.Registry
	entries []config.ProviderEntry
	cred    credential.Checker
	metrics *observe.Metrics
	breaker resilience.CircuitBreakerConfig

	mu    sync.Mutex
	key   string
	chain *resilience.LLMFallback
}

// NewEchoChain returns a chain over entries, tried in order.
func NewEchoChain(reg *config.Registry, entries []config.ProviderEntry, cred credential.Checker, m *observe.Metrics) *EchoChain {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &EchoChain{
		reg:     reg,
		entries: append([]config.ProviderEntry(nil), entries...),
		cred:    cred,
		metrics: m,
		breaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
}

// Complete implements [llm.Provider].
func (e *EchoChain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	chain, err := e.current(ctx)
	if err != nil {
		return nil, err
	}
	return chain.Complete(ctx, req)
}

// Capabilities implements [llm.Provider]. Without a buildable chain it
// reports no structured output support.
func (e *EchoChain) Capabilities() llm.Capabilities {
	chain, err := e.current(context.Background())
	if err != nil {
		return llm.Capabilities{}
	}
	return chain.Capabilities()
}

// Status returns the breaker snapshot of the built chain, or nil.
func (e *EchoChain) Status() []resilience.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain == nil {
		return nil
	}
	return e.chain.Status()
}

func (e *EchoChain) current(ctx context.Context) (*resilience.LLMFallback, error) {
	key := ""
	if e.cred != nil {
		key = e.cred.Key()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chain != nil && key == e.key {
		return e.chain, nil
	}

	var (
		chain *resilience.LLMFallback
		errs  []error
	)
	for _, entry := range e.entries {
		if entry.APIKey == "" {
			entry.APIKey = key
		}
		p, err := e.reg.CreateEcho(ctx, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name, err))
			observe.Logger(ctx).Warn("echo backend unavailable", "name", entry.Name, "err", err)
			continue
		}
		p = &instrumented{Provider: p, name: entry.Name, metrics: e.metrics}
		if chain == nil {
			chain = resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{CircuitBreaker: e.breaker})
		} else {
			chain.AddFallback(entry.Name, p)
		}
	}
	if chain == nil {
		return nil, errors.Join(append([]error{ErrNoEchoBackend}, errs...)...)
	}

	e.key, e.chain = key, chain
	observe.Logger(ctx).Debug("echo chain built", "model", chain.Capabilities().Model)
	return chain, nil
}

// instrumented counts requests per backend.
type instrumented struct {
	llm.Provider
	name    string
	metrics *observe.Metrics
}

func (p *instrumented) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.Provider.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "echo", status)
	return resp, err
}
