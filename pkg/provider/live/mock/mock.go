// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and to drive a session from the test:
// the handlers passed to Connect are captured, and [Provider.Open],
// [Provider.Emit], [Provider.Fail] and [Provider.CloseRemote] invoke them as
// the remote side would. Use Session to inspect what the caller streamed.
//
// Example:
//
//	p := &mock.Provider{OpenOnConnect: true}
//	sess, _ := p.Connect(ctx, cfg, handlers)
//	p.Emit(live.Message{OutputTranscription: "Hello"})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/soulecho/pkg/audio"
	"github.com/MrWong99/soulecho/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu       sync.Mutex
	handlers live.Handlers

	// Session is returned by Connect. If nil, a new Session is created.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// OpenOnConnect fires OnOpen synchronously inside Connect, before it
	// returns, as a fast remote side would.
	OpenOnConnect bool

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call, captures h and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config, h live.Handlers) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		err := p.ConnectErr
		p.mu.Unlock()
		return nil, err
	}
	p.handlers = h
	if p.Session == nil {
		p.Session = &Session{}
	}
	sess, openNow := p.Session, p.OpenOnConnect
	p.mu.Unlock()

	if openNow && h.OnOpen != nil {
		h.OnOpen()
	}
	return sess, nil
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

func (p *Provider) current() live.Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers
}

// Open fires the captured OnOpen handler.
func (p *Provider) Open() {
	if h := p.current(); h.OnOpen != nil {
		h.OnOpen()
	}
}

// Emit fires the captured OnMessage handler.
func (p *Provider) Emit(msg live.Message) {
	if h := p.current(); h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

// Fail fires the captured OnError handler.
func (p *Provider) Fail(err error) {
	if h := p.current(); h.OnError != nil {
		h.OnError(err)
	}
}

// CloseRemote fires the captured OnClose handler.
func (p *Provider) CloseRemote(reason string) {
	if h := p.current(); h.OnClose != nil {
		h.OnClose(reason)
	}
}

// ErrSessionClosed is returned by a blocked send released by Close.
var ErrSessionClosed = errors.New("mock: session closed")

// Session is a mock implementation of live.Session.
type Session struct {
	mu      sync.Mutex
	closed  bool
	release chan struct{}

	// SendErr, if non-nil, is returned by SendRealtimeInput.
	SendErr error

	// BlockSends makes SendRealtimeInput record the blob and then wait until
	// Close, as a send to a stalled peer does.
	BlockSends bool

	// Trace, when set, is called with "session.close".
	Trace func(event string)

	// Sent records every blob passed to SendRealtimeInput.
	Sent []audio.Blob

	// CloseCount records how many times Close was called.
	CloseCount int
}

// SendRealtimeInput records blob and returns SendErr.
func (s *Session) SendRealtimeInput(blob audio.Blob) error {
	s.mu.Lock()
	if s.SendErr != nil {
		s.mu.Unlock()
		return s.SendErr
	}
	s.Sent = append(s.Sent, blob)
	if !s.BlockSends || s.closed {
		s.mu.Unlock()
		return nil
	}
	release := s.releaseLocked()
	s.mu.Unlock()

	<-release
	return ErrSessionClosed
}

func (s *Session) releaseLocked() chan struct{} {
	if s.release == nil {
		s.release = make(chan struct{})
	}
	return s.release
}

// Close records the call and releases blocked sends.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCount++
	if !s.closed {
		close(s.releaseLocked())
	}
	s.closed = true
	trace := s.Trace
	s.mu.Unlock()
	if trace != nil {
		trace("session.close")
	}
	return nil
}

// SentCount returns the number of blobs received.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
