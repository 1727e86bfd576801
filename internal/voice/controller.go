// Package voice runs a live spoken conversation with the AI guide.
//
// A [Controller] owns one session: it dials the realtime model, streams
// microphone audio up once the session opens, schedules the model's audio
// for gapless playback and assembles the transcript. Its state moves from
// connecting to connected and ends in error or closed. Both end states are
// final; a new conversation needs a new Controller.
//
// Teardown releases resources in a fixed order so no callback fires into a
// closed device: microphone tracks, capture pump, input device, output
// device, remote session.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/audio"
	"github.com/MrWong99/soulecho/pkg/provider/live"
)

var (
	// ErrClosed is returned by Connect after the controller was closed.
	ErrClosed = errors.New("voice: controller closed")

	// ErrAlreadyStarted is returned by a second Connect call.
	ErrAlreadyStarted = errors.New("voice: session already started")
)

// State is the connection state of a session.
type State string

const (
	Connecting State = "connecting"
	Connected  State = "connected"
	Errored    State = "error"
	Closed     State = "closed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == Errored || s == Closed
}

func (s State) canMoveTo(to State) bool {
	switch s {
	case Connecting:
		return to == Connected || to == Errored || to == Closed
	case Connected:
		return to == Errored || to == Closed
	}
	return false
}

// Observer receives controller events. Nil callbacks are skipped. Callbacks
// may run on provider or device goroutines and must not block.
type Observer struct {
	// OnState fires on every state change. err is set for [Errored].
	OnState func(s State, err error)

	// OnTranscript fires with a copy of the transcript after it changes.
	OnTranscript func(entries []TranscriptEntry)

	// OnSpeaking fires when the model starts or stops speaking.
	OnSpeaking func(speaking bool)
}

// Option configures a [Controller].
type Option func(*Controller)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.obs = o }
}

// WithMetrics records voice metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller runs one voice session.
type Controller struct {
	id         string
	provider   live.Provider
	mic        audio.Microphone
	spk        audio.Speaker
	obs        Observer
	metrics    *observe.Metrics
	transcript *Transcript

	sessionReady chan struct{}
	pumpStop     chan struct{}
	done         chan struct{}
	doneOnce     sync.Once
	teardownOnce sync.Once

	mu                 sync.Mutex
	state              State
	err                error
	credentialRejected bool
	started            bool
	tornDown           bool
	ctx                context.Context
	cancel             context.CancelFunc
	span               trace.Span
	session            live.Session
	input              audio.InputStream
	output             audio.Output
	player             *Player
	pumpDone           chan struct{}
	connectedAt        time.Time
}

// New returns a controller that will talk through provider, mic and spk.
func New(provider live.Provider, mic audio.Microphone, spk audio.Speaker, opts ...Option) *Controller {
	c := &Controller{
		id:           ulid.Make().String(),
		provider:     provider,
		mic:          mic,
		spk:          spk,
		transcript:   NewTranscript(),
		sessionReady: make(chan struct{}),
		pumpStop:     make(chan struct{}),
		done:         make(chan struct{}),
		state:        Connecting,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// ID returns the session identifier used in logs.
func (c *Controller) ID() string { return c.id }

// Connect opens the output device and dials the model. The session moves to
// [Connected] when the model accepts the setup, which may happen before
// Connect returns. Cancelling ctx ends the session.
func (c *Controller) Connect(ctx context.Context, cfg live.Config) error {
	c.mu.Lock()
	switch {
	case c.tornDown:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	spanCtx, span := observe.StartSpan(ctx, "voice.session",
		trace.WithAttributes(attribute.String("voice.session_id", c.id)))
	c.span = span
	c.ctx, c.cancel = context.WithCancel(spanCtx)
	sessCtx := c.ctx
	c.mu.Unlock()

	context.AfterFunc(sessCtx, func() { _ = c.Close() })
	c.log().Info("voice session connecting", "model", cfg.Model, "voice", cfg.Voice)
	c.notifyState(Connecting, nil)

	out, err := c.spk.Open(sessCtx, audio.OutputSampleRate)
	if err != nil {
		err = fmt.Errorf("voice: open speaker: %w", err)
		close(c.sessionReady)
		c.fail(err)
		return err
	}
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		_ = out.Close()
		close(c.sessionReady)
		return ErrClosed
	}
	c.output = out
	c.player = NewPlayer(out, c.setSpeaking)
	c.mu.Unlock()

	sess, err := c.provider.Connect(sessCtx, cfg, live.Handlers{
		OnOpen:    c.handleOpen,
		OnMessage: c.handleMessage,
		OnError:   c.fail,
		OnClose:   c.handleClose,
	})
	if err != nil {
		err = fmt.Errorf("voice: connect: %w", err)
		close(c.sessionReady)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	torn := c.tornDown
	if !torn {
		c.session = sess
	}
	c.mu.Unlock()
	close(c.sessionReady)

	if torn {
		_ = sess.Close()
		return ErrClosed
	}
	return nil
}

// Close ends the session and releases every resource. It is safe to call
// more than once.
func (c *Controller) Close() error {
	c.transition(Closed, nil)
	c.teardown()
	return nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the session to [Errored].
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CredentialRejected reports whether the session failed because the remote
// side rejected the API key.
func (c *Controller) CredentialRejected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credentialRejected
}

// Done is closed once the session reaches a final state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Transcript returns a copy of the transcript.
func (c *Controller) Transcript() []TranscriptEntry {
	return c.transcript.Entries()
}

// Speaking reports whether model audio is playing.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	return p != nil && p.Speaking()
}

// ── State machine ───────────────────────────────────────────────────────────

// transition moves to the given state if allowed and reports whether it did.
func (c *Controller) transition(to State, err error) bool {
	c.mu.Lock()
	from := c.state
	if !from.canMoveTo(to) {
		c.mu.Unlock()
		return false
	}
	c.state = to
	if err != nil {
		c.err = err
		c.credentialRejected = echo.IsCredentialError(err)
	}
	if to == Connected {
		c.connectedAt = time.Now()
	}
	c.mu.Unlock()

	if to.Terminal() {
		c.doneOnce.Do(func() { close(c.done) })
	}
	c.log().Debug("voice session state", "from", from, "to", to)
	c.notifyState(to, err)
	return true
}

func (c *Controller) notifyState(s State, err error) {
	if c.obs.OnState != nil {
		c.obs.OnState(s, err)
	}
}

func (c *Controller) fail(err error) {
	if c.transition(Errored, err) {
		c.log().Warn("voice session failed", "err", err, "credential_rejected", c.CredentialRejected())
	}
	c.teardown()
}

// ── Provider callbacks ──────────────────────────────────────────────────────

func (c *Controller) handleOpen() {
	if !c.transition(Connected, nil) {
		return
	}
	c.metrics.VoiceSessionsActive.Add(c.context(), 1)
	c.log().Info("voice session connected")
	go c.startCapture()
}

func (c *Controller) handleClose(reason string) {
	if c.transition(Closed, nil) {
		c.log().Info("voice session closed by remote", "reason", reason)
	}
	c.teardown()
}

func (c *Controller) handleMessage(msg live.Message) {
	c.mu.Lock()
	state, player := c.state, c.player
	c.mu.Unlock()
	if state != Connected || player == nil {
		return
	}
	ctx := c.context()

	if c.transcript.Apply(msg) && c.obs.OnTranscript != nil {
		c.obs.OnTranscript(c.transcript.Entries())
	}

	for _, blob := range msg.Audio {
		buf, err := audio.DecodeBlob(blob, audio.OutputSampleRate)
		if err != nil {
			c.log().Warn("dropping undecodable audio chunk", "err", err)
			continue
		}
		player.Enqueue(buf)
		c.metrics.RecordAudioChunk(ctx, observe.DirectionOut)
	}

	if msg.Interrupted {
		dropped := player.Interrupt()
		c.log().Debug("playback interrupted", "dropped", dropped)
		c.metrics.VoiceInterruptions.Add(ctx, 1)
	}
}

func (c *Controller) setSpeaking(speaking bool) {
	if c.obs.OnSpeaking != nil {
		c.obs.OnSpeaking(speaking)
	}
}

// ── Capture ─────────────────────────────────────────────────────────────────

// startCapture waits for Connect to publish the session, then opens the
// microphone and starts the pump.
func (c *Controller) startCapture() {
	ctx := c.context()
	select {
	case <-c.sessionReady:
	case <-ctx.Done():
		return
	}
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}

	in, err := c.mic.Open(ctx, audio.InputSampleRate)
	if err != nil {
		c.fail(fmt.Errorf("voice: open microphone: %w", err))
		return
	}

	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		in.Stop()
		_ = in.Close()
		return
	}
	c.input = in
	done := make(chan struct{})
	c.pumpDone = done
	c.mu.Unlock()

	go c.pump(ctx, in, sess, done)
}

// pump streams captured frames until the input ends or the pump is stopped.
func (c *Controller) pump(ctx context.Context, in audio.InputStream, sess live.Session, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-c.pumpStop:
			return
		case frame, ok := <-in.Frames():
			if !ok {
				return
			}
			if err := sess.SendRealtimeInput(audio.NewBlob(frame, audio.InputSampleRate)); err != nil {
				c.log().Debug("failed to send audio chunk", "err", err)
				continue
			}
			c.metrics.RecordAudioChunk(ctx, observe.DirectionIn)
		}
	}
}

// ── Teardown ────────────────────────────────────────────────────────────────

func (c *Controller) teardown() {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		c.tornDown = true
		in, out, sess, player := c.input, c.output, c.session, c.player
		pumpDone, cancel, span := c.pumpDone, c.cancel, c.span
		connectedAt, err := c.connectedAt, c.err
		c.mu.Unlock()

		if in != nil {
			in.Stop()
		}
		// A pump blocked in SendRealtimeInput is released by sess.Close, so
		// it is joined only after the session is closed.
		close(c.pumpStop)
		if in != nil {
			if cerr := in.Close(); cerr != nil {
				c.log().Debug("failed to close microphone", "err", cerr)
			}
		}
		if out != nil && !out.Closed() {
			if cerr := out.Close(); cerr != nil {
				c.log().Debug("failed to close speaker", "err", cerr)
			}
		}
		if player != nil {
			player.Interrupt()
		}
		if sess != nil {
			if cerr := sess.Close(); cerr != nil {
				c.log().Debug("failed to close session", "err", cerr)
			}
		}
		if pumpDone != nil {
			<-pumpDone
		}

		ctx := context.Background()
		if !connectedAt.IsZero() {
			c.metrics.VoiceSessionsActive.Add(ctx, -1)
			c.metrics.VoiceSessionDuration.Record(ctx, time.Since(connectedAt).Seconds(),
				metric.WithAttributes(observe.Attr("state", string(c.State()))))
		}
		if span != nil {
			observe.EndSpan(span, err)
		}
		if cancel != nil {
			cancel()
		}
	})
}

// context returns the session context, or a background context before
// Connect.
func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Controller) log() *slog.Logger {
	return observe.Logger(c.context()).With("session_id", c.id)
}
