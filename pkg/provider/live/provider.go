// Package live defines the Provider interface for duplex realtime voice
// sessions: microphone audio streams up, synthesised audio, transcriptions
// and turn signals stream back.
//
// Implementations deliver every server event through [Handlers] callbacks
// from a single goroutine, in arrival order. OnOpen may fire before Connect
// returns.
package live

import (
	"context"

	"github.com/MrWong99/soulecho/pkg/audio"
)

// Config is fixed at session open time.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// SystemInstruction is the persona prompt for the remote model.
	SystemInstruction string

	// Voice is the prebuilt voice name for synthesised replies.
	Voice string

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool
}

// Message is one server event.
type Message struct {
	// Audio holds synthesised audio chunks, in order.
	Audio []audio.Blob

	// InputTranscription is a fragment of the user's recognised speech.
	InputTranscription string

	// OutputTranscription is a fragment of the model's spoken reply.
	OutputTranscription string

	// Interrupted signals that the user barged in and queued audio must stop.
	Interrupted bool

	// TurnComplete signals that the model finished its turn.
	TurnComplete bool
}

// Handlers receive session events. Nil handlers are skipped.
type Handlers struct {
	// OnOpen fires once the remote side accepted the session setup.
	OnOpen func()

	// OnMessage fires for every server content event.
	OnMessage func(Message)

	// OnError fires for server-reported errors and transport failures.
	OnError func(error)

	// OnClose fires when the remote side ends the session.
	OnClose func(reason string)
}

// Session is an open realtime session.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// SendRealtimeInput streams one encoded microphone chunk.
	SendRealtimeInput(blob audio.Blob) error

	// Close ends the session. Safe to call more than once.
	Close() error
}

// Provider opens realtime sessions.
type Provider interface {
	// Connect dials the remote service and sends the session setup. It fails
	// when the handshake cannot be completed.
	Connect(ctx context.Context, cfg Config, h Handlers) (Session, error)
}
