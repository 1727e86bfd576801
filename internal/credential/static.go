package credential

import "context"

var _ Checker = (*Static)(nil)

// Static holds a key supplied by configuration or the environment. It cannot
// prompt.
type Static struct {
	state keyState
}

// NewStatic returns a checker for key. An empty key means no credential.
func NewStatic(key string) *Static {
	s := &Static{}
	s.state.set(key)
	return s
}

// HasCredential implements [Checker].
func (s *Static) HasCredential(context.Context) bool { return s.state.has() }

// PromptForCredential implements [Checker]. It always fails.
func (s *Static) PromptForCredential(context.Context) error { return ErrNotInteractive }

// Key implements [Checker].
func (s *Static) Key() string { return s.state.get() }

// MarkInvalid implements [Checker].
func (s *Static) MarkInvalid() { s.state.markInvalid() }
