package cli

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/voice"
)

func (rt *runtime) converseCmd() *cobra.Command {
	var (
		voiceIO  audioFlags
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "converse",
		Short: "Talk with Kai, the voice guide, using audio files as microphone and speaker",
		Long: `converse streams --input to the live voice model and writes the guide's
spoken replies to --output. The session ends after --duration, when the
server closes it, or on Ctrl+C. The transcript is printed afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return converse(ctx, cmd, a, voiceIO, duration)
			})
		},
	}
	voiceIO.register(cmd, true)
	cmd.Flags().DurationVar(&duration, "duration", 0, "Maximum conversation length (0 waits for the server or Ctrl+C)")
	return cmd
}

func converse(ctx context.Context, cmd *cobra.Command, a *app.App, voiceIO audioFlags, duration time.Duration) error {
	out := cmd.OutOrStdout()
	l := a.Game().Language()
	mic, spk := voiceIO.devices()

	var mu sync.Mutex
	say := func(key i18n.Key) {
		mu.Lock()
		defer mu.Unlock()
		writeln(out, i18n.T(l, key))
	}

	say(i18n.GuideTitle)
	say(i18n.Connecting)
	ctl, err := a.Conversations().Start(ctx, mic, spk, voice.Observer{
		OnState: func(st voice.State, _ error) {
			if st == voice.Connected {
				say(i18n.GuideSubtitle)
			}
		},
	})
	if err != nil {
		return explain(l, a.Game().View(ctx), err)
	}

	var timeout <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctl.Done():
	case <-ctx.Done():
	case <-timeout:
	}
	_ = ctl.Close()

	mu.Lock()
	defer mu.Unlock()
	renderTranscript(out, l, ctl.Transcript())
	if ctl.State() == voice.Errored {
		writeln(out, i18n.T(l, i18n.ConnectionLost))
		return ctl.Err()
	}
	writeln(out, i18n.T(l, i18n.ConversationEnded))
	return nil
}
