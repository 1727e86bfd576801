// Package audio defines the device abstractions and PCM helpers used by
// realtime voice sessions.
//
// The two device abstractions are:
//
//   - [Microphone]: opens an [InputStream] delivering normalised mono frames.
//   - [Speaker]: opens an [Output] with its own clock on which decoded
//     [Buffer] values are scheduled for gapless playback.
//
// Concrete devices live in sub-packages (audio/file, audio/mock).
package audio

import (
	"context"
	"time"
)

// Microphone acquires a capture stream.
type Microphone interface {
	// Open starts capturing mono audio at sampleRate. It fails when the device
	// is unavailable or permission is denied.
	Open(ctx context.Context, sampleRate int) (InputStream, error)
}

// InputStream is an active capture.
//
// Implementations must be safe for concurrent use.
type InputStream interface {
	// Frames delivers captured frames of normalised samples. The channel is
	// closed once the stream is stopped or the source is exhausted.
	Frames() <-chan []float32

	// Stop stops all capture tracks. Safe to call more than once.
	Stop()

	// Close releases the capture context. Safe to call more than once.
	Close() error
}

// Speaker acquires a playback context.
type Speaker interface {
	// Open creates an output context running at sampleRate.
	Open(ctx context.Context, sampleRate int) (Output, error)
}

// Output is a playback context with a monotonic clock.
//
// Implementations must be safe for concurrent use.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Play schedules buf to start at the given clock position. onEnded is
	// invoked from another goroutine once playback finishes naturally; it is
	// never invoked synchronously from Play and never after [Source.Stop].
	Play(buf Buffer, at time.Duration, onEnded func()) Source

	// Closed reports whether Close has been called.
	Closed() bool

	// Close stops every scheduled source and releases the context. Safe to
	// call more than once.
	Close() error
}

// Source is one scheduled buffer.
type Source interface {
	// Stop halts playback. Safe to call more than once.
	Stop()
}
