// Package credential provides the API key capability that gates echo
// generation and voice sessions.
//
// A [Checker] answers whether a usable key is present and can ask the user
// for one. After a remote service rejects the key, callers invoke
// MarkInvalid so that later requests are refused locally until a new key is
// supplied.
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Environment variables consulted for a key, in order.
var EnvVars = []string{"SOULECHO_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

// ErrNoKey is returned by PromptForCredential when no key was entered.
var ErrNoKey = errors.New("credential: no key entered")

// ErrNotInteractive is returned when a prompt is impossible.
var ErrNotInteractive = errors.New("credential: input is not interactive")

// Checker is the credential capability.
//
// Implementations must be safe for concurrent use.
type Checker interface {
	// HasCredential reports whether a key is available and not known to be
	// rejected.
	HasCredential(ctx context.Context) bool

	// PromptForCredential asks the user for a new key.
	PromptForCredential(ctx context.Context) error

	// Key returns the current key, or "".
	Key() string

	// MarkInvalid records that the remote service rejected the current key.
	MarkInvalid()
}

// LookupFunc resolves environment variables. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// FromEnv returns the first non-empty value of [EnvVars].
func FromEnv(lookup LookupFunc) string {
	for _, name := range EnvVars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// keyState is the mutable key shared by the implementations.
type keyState struct {
	mu      sync.RWMutex
	key     string
	invalid bool
}

func (s *keyState) has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != "" && !s.invalid
}

func (s *keyState) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

func (s *keyState) set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.invalid = false
}

func (s *keyState) markInvalid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
}
