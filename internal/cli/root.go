// Package cli implements the soulecho command tree.
//
// Every command loads the configuration, wires an [app.App] and tears it
// down again before returning. Player-facing text follows the saved
// language.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
)

// shutdownTimeout bounds App.Shutdown after a command finished.
const shutdownTimeout = 10 * time.Second

// Option configures the command tree.
type Option func(*runtime)

// WithAppOptions passes extra options to every [app.New] call. Tests use it
// to inject storage, credentials and backends.
func WithAppOptions(opts ...app.Option) Option {
	return func(rt *runtime) { rt.appOpts = append(rt.appOpts, opts...) }
}

// WithLogOutput sends logs to w instead of the command's stderr.
func WithLogOutput(w io.Writer) Option {
	return func(rt *runtime) { rt.logOut = w }
}

// runtime carries the global flags and shared wiring of one invocation.
type runtime struct {
	configPath string
	logLevel   string
	ephemeral  bool

	appOpts []app.Option
	logOut  io.Writer
	level   *slog.LevelVar
}

// NewRootCmd builds the soulecho command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	rt := &runtime{level: new(slog.LevelVar)}
	for _, o := range opts {
		o(rt)
	}

	root := &cobra.Command{
		Use:   "soulecho",
		Short: "A breathing and reflection game with AI-generated soul echoes",
		Long: `soulecho is a small relaxation game for the terminal.
Breathe to gather clarity, spend it to reflect and collect Soul Echoes,
or talk with Kai, your voice guide.`,
		Version:       app.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			out := rt.logOut
			if out == nil {
				out = cmd.ErrOrStderr()
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: rt.level})))
		},
	}

	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", config.DefaultPath(), "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log_level)")
	root.PersistentFlags().BoolVar(&rt.ephemeral, "ephemeral", false, "Keep progress in memory only; nothing is loaded or saved")

	root.AddCommand(
		rt.statusCmd(),
		rt.breatheCmd(),
		rt.reflectCmd(),
		rt.journalCmd(),
		rt.langCmd(),
		rt.musicCmd(),
		rt.setupCmd(),
		rt.converseCmd(),
		rt.playCmd(),
	)
	return root
}

// loadConfig reads --config and applies --log-level and --ephemeral.
func (rt *runtime) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return nil, err
	}
	if rt.ephemeral {
		cfg.Storage = config.StorageConfig{Driver: config.StorageMemory}
	}
	if rt.logLevel != "" {
		cfg.LogLevel = config.LogLevel(rt.logLevel)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	rt.level.Set(app.SlogLevel(cfg.LogLevel))
	return cfg, nil
}

// open loads the configuration and wires the application. The returned
// function shuts it down.
func (rt *runtime) open(ctx context.Context) (*app.App, func(), error) {
	cfg, err := rt.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	opts := append([]app.Option{app.WithLogLevel(rt.level)}, rt.appOpts...)
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}, nil
}

// withApp runs fn against a freshly wired application.
func (rt *runtime) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, closeApp, err := rt.open(ctx)
	if err != nil {
		return err
	}
	defer closeApp()
	return fn(ctx, a)
}

// ── Player-facing errors ─────────────────────────────────────────────────────

// playerError carries a translated message for a game error.
type playerError struct {
	msg string
	err error
}

func (e *playerError) Error() string { return e.msg }
func (e *playerError) Unwrap() error { return e.err }

// explain translates the game errors a player can cause. Other errors pass
// through unchanged.
func explain(l i18n.Lang, v game.View, err error) error {
	var msg string
	switch {
	case err == nil:
		return nil
	case errors.Is(err, game.ErrInsufficientFocus):
		msg = i18n.T(l, i18n.NotEnoughClarity, "focus", formatFocus(v.Stats.Focus), "cost", formatFocus(game.FocusCost))
	case errors.Is(err, game.ErrCredentialMissing):
		msg = i18n.T(l, i18n.CredentialMissing)
	case errors.Is(err, game.ErrGenerationFailed):
		msg = i18n.T(l, i18n.EchoFaded)
	default:
		return err
	}
	return &playerError{msg: msg, err: err}
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
