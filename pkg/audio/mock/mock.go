// Package mock provides in-memory implementations of the [audio.Microphone],
// [audio.InputStream], [audio.Speaker] and [audio.Output] interfaces for use
// in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values. The output uses a manual
// clock: tests advance it with [Output.SetNow] and finish sources with
// [Output.End].
//
// Typical usage:
//
//	in := mock.NewInputStream(4)
//	mic := &mock.Microphone{Stream: in}
//	out := &mock.Output{}
//	spk := &mock.Speaker{Output: out}
//	in.Push(make([]float32, 4096))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/soulecho/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Microphone  = (*Microphone)(nil)
	_ audio.InputStream = (*InputStream)(nil)
	_ audio.Speaker     = (*Speaker)(nil)
	_ audio.Output      = (*Output)(nil)
	_ audio.Source      = (*Source)(nil)
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single Open invocation.
type OpenCall struct {
	SampleRate int
}

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Stream is returned by Open. A fresh stream is created when nil.
	Stream *InputStream

	// OpenError is returned by Open, if non-nil.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context, sampleRate int) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{SampleRate: sampleRate})
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	if m.Stream == nil {
		m.Stream = NewInputStream(16)
	}
	return m.Stream, nil
}

// OpenCount returns the number of Open invocations.
func (m *Microphone) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenCalls)
}

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a mock implementation of [audio.InputStream]. Frames are
// injected with [InputStream.Push].
type InputStream struct {
	mu      sync.Mutex
	frames  chan []float32
	stopped bool

	// Trace, when set, is called with "input.stop" and "input.close".
	Trace func(event string)

	// CloseError is returned by Close.
	CloseError error

	// StopCount records how many times Stop was called.
	StopCount int

	// CloseCount records how many times Close was called.
	CloseCount int
}

// NewInputStream returns a stream whose frame channel has the given buffer.
func NewInputStream(buffer int) *InputStream {
	return &InputStream{frames: make(chan []float32, buffer)}
}

// Frames implements [audio.InputStream].
func (s *InputStream) Frames() <-chan []float32 {
	return s.frames
}

// Push delivers a frame. It returns false when the stream was stopped or the
// buffer is full.
func (s *InputStream) Push(frame []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// Stop implements [audio.InputStream]. The frame channel is closed once.
func (s *InputStream) Stop() {
	s.mu.Lock()
	s.StopCount++
	if !s.stopped {
		s.stopped = true
		close(s.frames)
	}
	trace := s.Trace
	s.mu.Unlock()
	if trace != nil {
		trace("input.stop")
	}
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	s.CloseCount++
	trace, err := s.Trace, s.CloseError
	s.mu.Unlock()
	if trace != nil {
		trace("input.close")
	}
	return err
}

// Counts returns the Stop and Close call counts.
func (s *InputStream) Counts() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCount, s.CloseCount
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock implementation of [audio.Speaker].
type Speaker struct {
	mu sync.Mutex

	// Output is returned by Open. A fresh output is created when nil.
	Output *Output

	// OpenError is returned by Open, if non-nil.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

// Open implements [audio.Speaker].
func (s *Speaker) Open(_ context.Context, sampleRate int) (audio.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{SampleRate: sampleRate})
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	if s.Output == nil {
		s.Output = &Output{}
	}
	return s.Output, nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single Play invocation.
type PlayCall struct {
	Buffer audio.Buffer
	At     time.Duration
}

// Source is the mock [audio.Source] returned by [Output.Play].
type Source struct {
	out     *Output
	onEnded func()
	stopped bool
	ended   bool
}

// Stop implements [audio.Source].
func (s *Source) Stop() {
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	s.stopped = true
}

// Stopped reports whether Stop was called.
func (s *Source) Stopped() bool {
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	return s.stopped
}

// Output is a mock implementation of [audio.Output] driven by a manual clock.
type Output struct {
	mu      sync.Mutex
	now     time.Duration
	closed  bool
	sources []*Source

	// Trace, when set, is called with "output.close".
	Trace func(event string)

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CloseCount records how many times Close was called.
	CloseCount int
}

// SetNow moves the output clock.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// Now implements [audio.Output].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Play implements [audio.Output]. The source only ends when the test calls
// [Output.End].
func (o *Output) Play(buf audio.Buffer, at time.Duration, onEnded func()) audio.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayCalls = append(o.PlayCalls, PlayCall{Buffer: buf, At: at})
	src := &Source{out: o, onEnded: onEnded}
	o.sources = append(o.sources, src)
	return src
}

// End finishes the i-th played source and fires its onEnded callback unless
// the source was stopped or already ended.
func (o *Output) End(i int) {
	o.mu.Lock()
	if i < 0 || i >= len(o.sources) {
		o.mu.Unlock()
		return
	}
	src := o.sources[i]
	fire := !src.stopped && !src.ended && src.onEnded != nil
	src.ended = true
	cb := src.onEnded
	o.mu.Unlock()
	if fire {
		cb()
	}
}

// Sources returns the sources created so far, in Play order.
func (o *Output) Sources() []*Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Source(nil), o.sources...)
}

// Plays returns a copy of the recorded Play calls.
func (o *Output) Plays() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PlayCall(nil), o.PlayCalls...)
}

// Closed implements [audio.Output].
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close implements [audio.Output]. Every source is stopped.
func (o *Output) Close() error {
	o.mu.Lock()
	o.CloseCount++
	o.closed = true
	for _, s := range o.sources {
		s.stopped = true
	}
	trace := o.Trace
	o.mu.Unlock()
	if trace != nil {
		trace("output.close")
	}
	return nil
}
