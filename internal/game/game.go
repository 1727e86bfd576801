// Package game implements the Mindful Echoes state machine: the clarity
// loop, reflections that turn clarity into soul echoes, the journal of
// collected echoes and the player's preferences.
//
// A [Game] is safe for concurrent use. Every mutation is serialised and the
// full snapshot is written after each one that changes persisted state.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/observe"
)

// Sentinel errors returned by [Game] operations.
var (
	ErrNotIdle           = errors.New("game: not idle")
	ErrInsufficientFocus = errors.New("game: not enough clarity")
	ErrCredentialMissing = errors.New("game: credential missing")
	ErrGenerationFailed  = errors.New("game: generation failed")
	ErrWrongState        = errors.New("game: operation not allowed in current state")
	ErrEchoNotFound      = errors.New("game: echo not found")
	ErrInvalidLanguage   = errors.New("game: invalid language")
)

// Reflection results recorded on the reflections counter.
const (
	resultSuccess           = "success"
	resultFallback          = "fallback"
	resultNotIdle           = "not_idle"
	resultInsufficientFocus = "insufficient_focus"
	resultCredentialMissing = "credential_missing"
)

// State is the screen the player is on.
type State int

const (
	Idle State = iota
	Generating
	Reveal
	Collection
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Reveal:
		return "reveal"
	case Collection:
		return "collection"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Generator produces echo content. [*echo.Generator] satisfies it.
type Generator interface {
	Generate(ctx context.Context, level int) echo.Result
}

// Game owns the player's progress.
type Game struct {
	store     *SnapshotStore
	gen       Generator
	cred      credential.Checker
	metrics   *observe.Metrics
	now       func() time.Time
	newID     func() string
	clipboard func(string) error

	mu         sync.Mutex
	stats      PlayerStats
	collection []Echo
	lang       i18n.Lang
	music      bool
	state      State
	current    *Echo
	conversing bool
}

// Option configures a [Game].
type Option func(*Game)

// WithMetrics records game metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Game) { g.metrics = m }
}

// WithClock overrides the time source for collection dates.
func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// WithIDs overrides echo ID generation.
func WithIDs(newID func() string) Option {
	return func(g *Game) { g.newID = newID }
}

// WithClipboard overrides the clipboard writer used by [Game.Share].
func WithClipboard(write func(string) error) Option {
	return func(g *Game) { g.clipboard = write }
}

// WithLanguage sets the language used when no saved progress exists.
func WithLanguage(l i18n.Lang) Option {
	return func(g *Game) {
		if l.IsValid() {
			g.lang = l
		}
	}
}

// New loads saved progress from store, falling back to a new player.
func New(ctx context.Context, store *SnapshotStore, gen Generator, cred credential.Checker, opts ...Option) *Game {
	def := DefaultSnapshot()
	g := &Game{
		store:      store,
		gen:        gen,
		cred:       cred,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:      uuid.NewString,
		clipboard:  clipboard.WriteAll,
		stats:      def.Stats,
		collection: def.Collection,
		lang:       def.Lang,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}

	if snap, ok := store.Load(ctx); ok {
		g.stats = snap.Stats
		g.collection = snap.Collection
		g.lang = snap.Lang
		g.music = snap.Music
	}
	return g
}

// snapshotLocked copies the persisted state. g.mu must be held.
func (g *Game) snapshotLocked() Snapshot {
	return Snapshot{
		Stats:      g.stats,
		Collection: append([]Echo(nil), g.collection...),
		Lang:       g.lang,
		Music:      g.music,
	}
}

// saveLocked writes the snapshot while g.mu is held so writes land in
// mutation order. A cancelled ctx does not stop the write: every applied
// mutation must reach storage.
func (g *Game) saveLocked(ctx context.Context) {
	g.store.Save(context.WithoutCancel(ctx), g.snapshotLocked())
}

// ── Reflection ──────────────────────────────────────────────────────────────

// Reflect spends [FocusCost] clarity and asks for a new echo. The request
// runs to completion even if ctx is cancelled. On failure the clarity is not
// refunded, the game returns to [Idle], the credential is marked invalid and
// an error wrapping [ErrGenerationFailed] is returned.
func (g *Game) Reflect(ctx context.Context) (Echo, error) {
	ctx, span := observe.StartSpan(ctx, "game.reflect")

	g.mu.Lock()
	if err := g.beginReflectLocked(ctx); err != nil {
		g.mu.Unlock()
		observe.EndSpan(span, err)
		return Echo{}, err
	}
	level := g.stats.Level
	g.mu.Unlock()

	span.SetAttributes(attribute.Int("player.level", level))
	res := g.gen.Generate(context.WithoutCancel(ctx), level)

	g.mu.Lock()
	defer g.mu.Unlock()

	if res.Fallback {
		g.state = Idle
		g.cred.MarkInvalid()
		g.metrics.RecordReflection(ctx, resultFallback)
		cause := res.Err
		if cause == nil {
			cause = errors.New("fallback content returned")
		}
		err := fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
		observe.EndSpan(span, err)
		return Echo{}, err
	}

	e := NewEcho(g.newID(), res.Content, g.now())
	g.collection = append([]Echo{e}, g.collection...)
	g.stats.Level++
	g.stats.EchoesCollected++
	g.current = &e
	g.state = Reveal
	g.saveLocked(ctx)

	g.metrics.RecordReflection(ctx, resultSuccess)
	span.SetAttributes(attribute.String("echo.rarity", string(e.Rarity)))
	observe.EndSpan(span, nil)
	observe.Logger(ctx).Info("soul echo collected", "id", e.ID, "title", e.Title, "rarity", e.Rarity, "level", g.stats.Level)
	return e, nil
}

// beginReflectLocked validates and performs the optimistic spend.
func (g *Game) beginReflectLocked(ctx context.Context) error {
	if g.state != Idle {
		g.metrics.RecordReflection(ctx, resultNotIdle)
		return ErrNotIdle
	}
	if !g.cred.HasCredential(ctx) {
		g.metrics.RecordReflection(ctx, resultCredentialMissing)
		return ErrCredentialMissing
	}
	if g.stats.Focus < FocusCost {
		g.metrics.RecordReflection(ctx, resultInsufficientFocus)
		return fmt.Errorf("%w: %.1f of %.0f", ErrInsufficientFocus, g.stats.Focus, FocusCost)
	}
	g.stats.Focus -= FocusCost
	g.state = Generating
	g.saveLocked(ctx)
	return nil
}

// ── Navigation ──────────────────────────────────────────────────────────────

// Dismiss closes the revealed echo.
func (g *Game) Dismiss() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Reveal {
		return fmt.Errorf("%w: dismiss from %s", ErrWrongState, g.state)
	}
	g.state = Idle
	g.current = nil
	return nil
}

// OpenCollection opens the journal.
func (g *Game) OpenCollection() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Idle {
		return fmt.Errorf("%w: open journal from %s", ErrWrongState, g.state)
	}
	g.state = Collection
	return nil
}

// CloseCollection closes the journal.
func (g *Game) CloseCollection() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Collection {
		return fmt.Errorf("%w: close journal from %s", ErrWrongState, g.state)
	}
	g.state = Idle
	return nil
}

// SelectEcho reveals a collected echo from the journal.
func (g *Game) SelectEcho(id string) (Echo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Collection {
		return Echo{}, fmt.Errorf("%w: select echo from %s", ErrWrongState, g.state)
	}
	e, ok := g.findLocked(id)
	if !ok {
		return Echo{}, fmt.Errorf("%w: %s", ErrEchoNotFound, id)
	}
	g.current = &e
	g.state = Reveal
	return e, nil
}

func (g *Game) findLocked(id string) (Echo, bool) {
	for _, e := range g.collection {
		if e.ID == id {
			return e, true
		}
	}
	return Echo{}, false
}

// Echo returns a collected echo by ID.
func (g *Game) Echo(id string) (Echo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findLocked(id)
}

// Share copies the share text of a collected echo to the clipboard. The
// text is returned even when the clipboard is unavailable.
func (g *Game) Share(id string) (string, error) {
	g.mu.Lock()
	e, ok := g.findLocked(id)
	write := g.clipboard
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrEchoNotFound, id)
	}

	text := e.ShareText()
	if err := write(text); err != nil {
		return text, fmt.Errorf("game: copy to clipboard: %w", err)
	}
	return text, nil
}

// ── Preferences ─────────────────────────────────────────────────────────────

// ToggleLanguage switches between the supported languages.
func (g *Game) ToggleLanguage(ctx context.Context) i18n.Lang {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lang = g.lang.Toggle()
	g.saveLocked(ctx)
	return g.lang
}

// SetLanguage selects l.
func (g *Game) SetLanguage(ctx context.Context, l i18n.Lang) error {
	if !l.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, l)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lang == l {
		return nil
	}
	g.lang = l
	g.saveLocked(ctx)
	return nil
}

// Language returns the selected language.
func (g *Game) Language() i18n.Lang {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lang
}

// ToggleMusic flips the music preference and returns the new value.
func (g *Game) ToggleMusic(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.music = !g.music
	g.saveLocked(ctx)
	return g.music
}

// SetMusic sets the music preference.
func (g *Game) SetMusic(ctx context.Context, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.music == on {
		return
	}
	g.music = on
	g.saveLocked(ctx)
}

// ── Conversation overlay ────────────────────────────────────────────────────

// SetConversing shows or hides the voice conversation. Starting one needs a
// credential.
func (g *Game) SetConversing(ctx context.Context, on bool) error {
	if on && !g.cred.HasCredential(ctx) {
		return ErrCredentialMissing
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conversing = on
	return nil
}

// ── Read model ──────────────────────────────────────────────────────────────

// View is a copy of the game state for presentation.
type View struct {
	State           State
	Stats           PlayerStats
	Collection      []Echo
	Current         *Echo
	Lang            i18n.Lang
	Music           bool
	Conversing      bool
	CredentialReady bool
}

// CanReflect reports whether a reflection would be accepted.
func (v View) CanReflect() bool {
	return v.State == Idle && v.CredentialReady && v.Stats.Focus >= FocusCost
}

// Progress returns clarity as a fraction of the cap.
func (v View) Progress() float64 {
	if v.Stats.MaxFocus <= 0 {
		return 0
	}
	return v.Stats.Focus / v.Stats.MaxFocus
}

// View returns a snapshot of the current state.
func (g *Game) View(ctx context.Context) View {
	ready := g.cred.HasCredential(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	v := View{
		State:           g.state,
		Stats:           g.stats,
		Collection:      append([]Echo(nil), g.collection...),
		Lang:            g.lang,
		Music:           g.music,
		Conversing:      g.conversing,
		CredentialReady: ready,
	}
	if g.current != nil {
		cur := *g.current
		v.Current = &cur
	}
	return v
}
