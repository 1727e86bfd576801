// Package app wires all soulecho subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens storage, resolves the
// credential, builds the echo backend chain and loads the game; Serve runs
// the optional diagnostics server; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStorage,
// WithCredential, WithGenerator, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/health"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/persist"
)

// Version is reported in telemetry. Overridden at build time with -ldflags.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	reg       *config.Registry
	kv        persist.KV
	cred      credential.Checker
	gen       game.Generator
	echoes    *EchoChain
	metrics   *observe.Metrics
	telemetry *observe.Telemetry
	level     *slog.LevelVar
	gameOpts  []game.Option

	game          *game.Game
	conversations *Conversations
	health        *health.Handler

	cfgMu sync.RWMutex
	cfg   *config.Config

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry replaces the backend registry. The default registry holds
// [RegisterBuiltins].
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.reg = reg }
}

// WithStorage injects a key-value store instead of opening storage.driver.
// The injected store is not closed by Shutdown.
func WithStorage(kv persist.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithCredential injects the credential capability instead of the terminal
// prompt backed by credential.key_file.
func WithCredential(c credential.Checker) Option {
	return func(a *App) { a.cred = c }
}

// WithGenerator injects the echo generator instead of the configured
// backend chain.
func WithGenerator(g game.Generator) Option {
	return func(a *App) { a.gen = g }
}

// WithMetrics records on m and skips the OpenTelemetry SDK setup.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot-reloaded log_level changes adjust v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithGameOptions passes extra options to [game.New].
func WithGameOptions(opts ...game.Option) Option {
	return func(a *App) { a.gameOpts = append(a.gameOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On error every
// subsystem opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Registry ──────────────────────────────────────────────────────
	if a.reg == nil {
		a.reg = config.NewRegistry()
		RegisterBuiltins(a.reg)
	}

	// ── 2. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 3. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return fmt.Errorf("app: init storage: %w", err)
	}

	// ── 4. Credential ────────────────────────────────────────────────────
	if a.cred == nil {
		t, err := credential.NewTerminal(a.cfg.Credential.KeyFile, os.LookupEnv)
		if err != nil {
			return fmt.Errorf("app: init credential: %w", err)
		}
		a.cred = t
	}

	// ── 5. Echo generator ────────────────────────────────────────────────
	if a.gen == nil {
		a.echoes = NewEchoChain(a.reg, a.cfg.Providers.Echo, a.cred, a.metrics)
		gen, err := echo.New(a.echoes, echo.WithMetrics(a.metrics))
		if err != nil {
			return fmt.Errorf("app: init echo generator: %w", err)
		}
		a.gen = gen
	}

	// ── 6. Game ──────────────────────────────────────────────────────────
	gameOpts := append([]game.Option{game.WithMetrics(a.metrics)}, a.gameOpts...)
	a.game = game.New(ctx, game.NewSnapshotStore(a.kv), a.gen, a.cred, gameOpts...)
	if l, ok := forcedLanguage(a.cfg.Game.Language); ok {
		if err := a.game.SetLanguage(ctx, l); err != nil {
			return fmt.Errorf("app: init game: %w", err)
		}
	}

	// ── 7. Conversations ─────────────────────────────────────────────────
	a.conversations = NewConversations(ConversationsConfig{
		Registry:   a.reg,
		Config:     a.Config,
		Game:       a.game,
		Credential: a.cred,
		Metrics:    a.metrics,
	})
	a.closers = append(a.closers, a.conversations.Stop)

	// ── 8. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{
		health.StorageChecker(a.kv),
		health.CredentialChecker(a.cred.HasCredential),
	}
	if a.echoes != nil {
		checkers = append(checkers, health.BreakerChecker(a.echoes.Status))
	}
	a.health = health.New(checkers...)

	slog.Info("app initialised",
		"storage", a.cfg.Storage.Driver,
		"echo_backends", len(a.cfg.Providers.Echo),
		"live", a.cfg.Providers.Live.Name,
		"credential", a.cred.HasCredential(ctx),
	)
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry installs the OpenTelemetry SDK unless metrics were injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return err
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(sctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initStorage opens the configured key-value backend unless one was injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.kv != nil {
		return nil
	}
	kv, err := a.reg.OpenStorage(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	return nil
}

// forcedLanguage parses game.language. Empty keeps the saved choice.
func forcedLanguage(s string) (i18n.Lang, bool) {
	if s == "" {
		return "", false
	}
	return i18n.Parse(s)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Game returns the game state machine.
func (a *App) Game() *game.Game { return a.game }

// Conversations returns the voice conversation manager.
func (a *App) Conversations() *Conversations { return a.conversations }

// Credential returns the credential capability.
func (a *App) Credential() credential.Checker { return a.cred }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Metrics returns the application instruments.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Config returns the current configuration. It changes on [App.Reload].
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable fields of next: log level, guide voice
// (next conversation) and forced language. Sections listed in
// diff.RestartRequired keep their running values until restart.
func (a *App) Reload(ctx context.Context, next *config.Config, diff config.ConfigDiff) {
	a.cfgMu.Lock()
	// Startup-only sections keep their running values.
	merged := *a.cfg
	merged.LogLevel = next.LogLevel
	merged.Voice.Voice = next.Voice.Voice
	merged.Game.Language = next.Game.Language
	a.cfg = &merged
	a.cfgMu.Unlock()

	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VoiceChanged {
		slog.Info("guide voice changed", "voice", diff.NewVoice)
	}
	if diff.LanguageChanged {
		if l, ok := forcedLanguage(diff.NewLanguage); ok {
			if err := a.game.SetLanguage(ctx, l); err != nil {
				slog.Warn("failed to apply language", "lang", diff.NewLanguage, "err", err)
			}
		}
	}
}

// SlogLevel maps a configured log level to its slog level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Diagnostics server ──────────────────────────────────────────────────────

// DebugHandler serves /metrics (when the SDK was installed by New),
// /healthz and /readyz.
func (a *App) DebugHandler() http.Handler {
	mux := http.NewServeMux()
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.MetricsHandler)
	}
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Serve runs the diagnostics server on debug.listen_addr until ctx is done.
// It returns nil immediately when no address is configured.
func (a *App) Serve(ctx context.Context) error {
	addr := a.Config().Debug.ListenAddr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: debug listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.DebugHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("debug server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("app: debug server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("app: debug server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: debug server: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Debug("shutdown complete")
	})
	return shutdownErr
}
