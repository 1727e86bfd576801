package credential

import (
	"context"
	"sync"
)

var _ Checker = (*Stub)(nil)

// Stub is a test double for [Checker].
type Stub struct {
	mu sync.Mutex

	// Secret is returned by Key. HasCredential is true while it is non-empty
	// and MarkInvalid was not called.
	Secret string

	// PromptKey becomes Secret on a successful PromptForCredential.
	PromptKey string

	// PromptErr, if non-nil, is returned by PromptForCredential.
	PromptErr error

	// PromptCalls counts PromptForCredential invocations.
	PromptCalls int

	// Invalidated counts MarkInvalid invocations.
	Invalidated int

	invalid bool
}

// HasCredential implements [Checker].
func (s *Stub) HasCredential(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Secret != "" && !s.invalid
}

// PromptForCredential implements [Checker].
func (s *Stub) PromptForCredential(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PromptCalls++
	if s.PromptErr != nil {
		return s.PromptErr
	}
	if s.PromptKey == "" {
		return ErrNoKey
	}
	s.Secret = s.PromptKey
	s.invalid = false
	return nil
}

// Key implements [Checker].
func (s *Stub) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Secret
}

// MarkInvalid implements [Checker].
func (s *Stub) MarkInvalid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invalidated++
	s.invalid = true
}
