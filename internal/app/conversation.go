package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/internal/voice"
	"github.com/MrWong99/soulecho/pkg/audio"
	"github.com/MrWong99/soulecho/pkg/provider/live"
)

// ErrConversationActive is returned by [Conversations.Start] while another
// conversation is still open.
var ErrConversationActive = errors.New("app: a conversation is already active")

// Conversations manages the lifecycle of voice conversations with the guide.
// Only one conversation can be active at a time. All exported methods are
// safe for concurrent use.
type Conversations struct {
	reg     *config.Registry
	cfg     func() *config.Config
	game    *game.Game
	cred    credential.Checker
	metrics *observe.Metrics

	mu     sync.Mutex
	active *voice.Controller
}

// ConversationsConfig holds all dependencies for [Conversations].
type ConversationsConfig struct {
	Registry   *config.Registry
	Config     func() *config.Config
	Game       *game.Game
	Credential credential.Checker
	Metrics    *observe.Metrics
}

// NewConversations creates a manager with the given dependencies.
func NewConversations(cfg ConversationsConfig) *Conversations {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Conversations{
		reg:     cfg.Registry,
		cfg:     cfg.Config,
		game:    cfg.Game,
		cred:    cfg.Credential,
		metrics: m,
	}
}

// Start opens a conversation capturing from mic and playing to spk. The
// game's conversing flag is raised for the lifetime of the session. The
// system instruction follows the game's current language; voice settings
// are read from the live configuration at call time.
//
// Returns [ErrConversationActive] if a conversation is open and
// [game.ErrCredentialMissing] without an API key.
func (c *Conversations) Start(ctx context.Context, mic audio.Microphone, spk audio.Speaker, obs voice.Observer) (*voice.Controller, error) {
	c.mu.Lock()
	if c.active != nil && !c.active.State().Terminal() {
		c.mu.Unlock()
		return nil, ErrConversationActive
	}
	if err := c.game.SetConversing(ctx, true); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	cfg := c.cfg()
	provider, err := c.provider(ctx, cfg.Providers.Live)
	if err != nil {
		c.mu.Unlock()
		c.endConversing(ctx)
		return nil, fmt.Errorf("app: start conversation: %w", err)
	}

	ctl := voice.New(provider, mic, spk, voice.WithObserver(obs), voice.WithMetrics(c.metrics))
	c.active = ctl
	c.mu.Unlock()

	go c.watch(ctx, ctl)

	err = ctl.Connect(ctx, live.Config{
		Model:               cfg.Voice.Model,
		SystemInstruction:   i18n.Instruction(c.game.Language()),
		Voice:               cfg.Voice.Voice,
		InputTranscription:  cfg.Voice.InputTranscription,
		OutputTranscription: cfg.Voice.OutputTranscription,
	})
	if err != nil {
		return nil, fmt.Errorf("app: start conversation: %w", err)
	}
	observe.Logger(ctx).Info("conversation started", "id", ctl.ID(), "voice", cfg.Voice.Voice)
	return ctl, nil
}

// Stop ends the active conversation, if any.
func (c *Conversations) Stop() error {
	c.mu.Lock()
	ctl := c.active
	c.mu.Unlock()
	if ctl == nil {
		return nil
	}
	return ctl.Close()
}

// Active returns the open conversation, or nil.
func (c *Conversations) Active() *voice.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.State().Terminal() {
		return nil
	}
	return c.active
}

// watch lowers the conversing flag once ctl ends and records a rejected
// credential.
func (c *Conversations) watch(ctx context.Context, ctl *voice.Controller) {
	<-ctl.Done()

	if ctl.CredentialRejected() {
		c.cred.MarkInvalid()
	}
	c.mu.Lock()
	current := c.active == ctl
	if current {
		c.active = nil
	}
	c.mu.Unlock()

	// A newer conversation owns the flag once it replaced ctl.
	if current {
		c.endConversing(context.WithoutCancel(ctx))
	}
	observe.Logger(ctx).Info("conversation ended", "id", ctl.ID(), "state", ctl.State(), "err", ctl.Err())
}

func (c *Conversations) endConversing(ctx context.Context) {
	if err := c.game.SetConversing(ctx, false); err != nil {
		observe.Logger(ctx).Warn("failed to clear conversing flag", "err", err)
	}
}

func (c *Conversations) provider(ctx context.Context, entry config.ProviderEntry) (live.Provider, error) {
	if entry.APIKey == "" {
		entry.APIKey = c.cred.Key()
	}
	return c.reg.CreateLive(ctx, entry)
}
