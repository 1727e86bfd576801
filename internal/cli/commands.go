package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
)

func (rt *runtime) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show level, clarity and journal size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				renderStatus(cmd.OutOrStdout(), a.Game().View(ctx))
				return nil
			})
		},
	}
}

func (rt *runtime) breatheCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "breathe",
		Short: "Take mindful breaths to gather clarity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				g := a.Game()
				for range count {
					g.Breathe(ctx)
				}
				v := g.View(ctx)
				writef(cmd.OutOrStdout(), "%s  [%s]  %s / %s\n",
					i18n.T(v.Lang, i18n.MentalClarity), clarityBar(v.Progress()),
					formatFocus(v.Stats.Focus), formatFocus(v.Stats.MaxFocus))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of breaths")
	return cmd
}

func (rt *runtime) reflectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reflect",
		Short: "Spend clarity to discover a new Soul Echo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				g := a.Game()
				before := g.View(ctx)
				out := cmd.OutOrStdout()
				if before.CanReflect() {
					writeln(out, i18n.T(before.Lang, i18n.ListeningToUniverse))
				}
				e, err := g.Reflect(ctx)
				if err != nil {
					return explain(before.Lang, before, err)
				}
				renderEcho(out, g.Language(), e, i18n.NewDiscovery)
				return nil
			})
		},
	}
}

func (rt *runtime) journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "journal",
		Aliases: []string{"collection"},
		Short:   "Browse collected Soul Echoes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				renderJournal(cmd.OutOrStdout(), a.Game().View(ctx))
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List collected echoes, newest first",
			Args:  cobra.NoArgs,
			RunE:  cmd.RunE,
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Show one echo (a unique ID prefix is enough)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
					v := a.Game().View(ctx)
					id, err := resolveID(v.Collection, args[0])
					if err != nil {
						return err
					}
					e, _ := a.Game().Echo(id)
					renderEcho(cmd.OutOrStdout(), v.Lang, e, "")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "share ID",
			Short: "Copy an echo's wisdom to the clipboard",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
					v := a.Game().View(ctx)
					id, err := resolveID(v.Collection, args[0])
					if err != nil {
						return err
					}
					return share(cmd, a.Game(), v.Lang, id)
				})
			},
		},
	)
	return cmd
}

// share prints the share text and reports whether it reached the clipboard.
func share(cmd *cobra.Command, g *game.Game, l i18n.Lang, id string) error {
	text, err := g.Share(id)
	if text == "" {
		return err
	}
	out := cmd.OutOrStdout()
	writeln(out, text)
	if err != nil {
		writef(cmd.ErrOrStderr(), "%v\n", err)
		return nil
	}
	writeln(out, i18n.T(l, i18n.Copied))
	return nil
}

func (rt *runtime) langCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "lang [en|zh]",
		Short:     "Show or switch the display language (toggles without an argument)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(i18n.English), string(i18n.Chinese)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				g := a.Game()
				if len(args) == 0 {
					g.ToggleLanguage(ctx)
				} else {
					l, ok := i18n.Parse(args[0])
					if !ok {
						return fmt.Errorf("%w: %q", game.ErrInvalidLanguage, args[0])
					}
					if err := g.SetLanguage(ctx, l); err != nil {
						return err
					}
				}
				writeln(cmd.OutOrStdout(), g.Language())
				return nil
			})
		},
	}
}

func (rt *runtime) musicCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "music [on|off]",
		Short:     "Show or switch the music preference (toggles without an argument)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				g := a.Game()
				if len(args) == 0 {
					g.ToggleMusic(ctx)
				} else {
					on, err := parseOnOff(args[0])
					if err != nil {
						return err
					}
					g.SetMusic(ctx, on)
				}
				v := g.View(ctx)
				writef(cmd.OutOrStdout(), "%s: %s\n", i18n.T(v.Lang, i18n.Music), onOff(v.Lang, v.Music))
				return nil
			})
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func (rt *runtime) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Enter and store the API key used for echoes and the voice guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Credential().PromptForCredential(ctx); err != nil {
					return fmt.Errorf("setup: %w", err)
				}
				if !a.Credential().HasCredential(ctx) {
					return errors.New("setup: key was not accepted")
				}
				writeln(cmd.OutOrStdout(), "API key saved.")
				return nil
			})
		},
	}
}
