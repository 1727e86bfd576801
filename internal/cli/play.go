package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/voice"
	"github.com/MrWong99/soulecho/pkg/audio"
	"github.com/MrWong99/soulecho/pkg/audio/file"
)

// errQuit ends the play loop without reporting an error.
var errQuit = errors.New("cli: quit")

const playHelp = `commands:
  <enter>, b   breathe
  r            reflect (costs 100 clarity)
  d            dismiss the revealed echo
  j / c        open / close the journal
  o ID         open a journal echo
  share [ID]   copy an echo's wisdom
  s            status
  l            switch language
  m            toggle music
  t / e        talk with Kai / end the conversation
  h            help
  q            quit`

func (rt *runtime) playCmd() *cobra.Command {
	var voiceIO audioFlags
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play interactively: clarity grows every second while you rest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if voiceIO.input != "" && voiceIO.output == "" {
				return errors.New("--output is required with --input")
			}
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return rt.play(ctx, cmd, a, voiceIO)
			})
		},
	}
	voiceIO.register(cmd, false)
	return cmd
}

func (rt *runtime) play(ctx context.Context, cmd *cobra.Command, a *app.App, voiceIO audioFlags) error {
	watcher, err := config.NewWatcher(rt.configPath, func(_, next *config.Config, diff config.ConfigDiff) {
		a.Reload(ctx, next, diff)
	})
	if err != nil {
		return err
	}

	s := &playSession{
		app:         a,
		out:         cmd.OutOrStdout(),
		errOut:      cmd.ErrOrStderr(),
		reflections: make(chan reflection, 1),
		events:      make(chan string, 64),
	}
	if voiceIO.input != "" {
		s.mic, s.spk = voiceIO.devices()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		game.RunFocus(gctx, a.Game(), a.Config().Game.TickInterval)
		return nil
	})
	g.Go(func() error { return a.Serve(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return s.loop(gctx, cmd.InOrStdin()) })

	err = g.Wait()
	// A reflection still generating must save before storage closes.
	s.inflight.Wait()
	if err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// reflection is the outcome of a background [game.Game.Reflect].
type reflection struct {
	echo   game.Echo
	before game.View
	err    error
}

// playSession is the interactive loop. Only loop's goroutine writes to out,
// except for the conversation observer which posts to events instead.
type playSession struct {
	app    *app.App
	out    io.Writer
	errOut io.Writer
	mic    audio.Microphone
	spk    audio.Speaker

	reflections chan reflection
	events      chan string
	inflight    sync.WaitGroup
}

func (s *playSession) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	renderStatus(s.out, s.app.Game().View(ctx))
	writeln(s.out, playHelp)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if s.handle(ctx, line) {
				return errQuit
			}
		case r := <-s.reflections:
			l := s.app.Game().Language()
			if r.err != nil {
				writeln(s.out, explain(l, r.before, r.err).Error())
				continue
			}
			renderEcho(s.out, l, r.echo, i18n.NewDiscovery)
		case ev := <-s.events:
			writeln(s.out, ev)
		}
	}
}

// handle runs one command line and reports whether the player quit.
func (s *playSession) handle(ctx context.Context, line string) bool {
	g := s.app.Game()
	fields := strings.Fields(line)
	verb, arg := "b", ""
	if len(fields) > 0 {
		verb = strings.ToLower(fields[0])
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	l := g.Language()

	switch verb {
	case "b", "breathe":
		g.Breathe(ctx)
		v := g.View(ctx)
		writef(s.out, "%s  [%s]  %s / %s\n", i18n.T(l, i18n.MentalClarity), clarityBar(v.Progress()),
			formatFocus(v.Stats.Focus), formatFocus(v.Stats.MaxFocus))
	case "r", "reflect":
		s.reflect(ctx)
	case "d", "dismiss":
		s.report(g.Dismiss())
	case "j", "journal":
		if s.report(g.OpenCollection()) {
			renderJournal(s.out, g.View(ctx))
		}
	case "c", "close":
		s.report(g.CloseCollection())
	case "o", "open":
		id, err := resolveID(g.View(ctx).Collection, arg)
		if !s.report(err) {
			break
		}
		e, err := g.SelectEcho(id)
		if s.report(err) {
			renderEcho(s.out, l, e, "")
		}
	case "share":
		s.share(ctx, arg)
	case "s", "status":
		renderStatus(s.out, g.View(ctx))
	case "l", "lang":
		writeln(s.out, g.ToggleLanguage(ctx))
	case "m", "music":
		writef(s.out, "%s: %s\n", i18n.T(l, i18n.Music), onOff(l, g.ToggleMusic(ctx)))
	case "t", "talk":
		s.talk(ctx)
	case "e", "end":
		s.report(s.app.Conversations().Stop())
	case "h", "help", "?":
		writeln(s.out, playHelp)
	case "q", "quit", "exit":
		return true
	default:
		writeln(s.out, playHelp)
	}
	return false
}

// report prints err and reports whether it was nil.
func (s *playSession) report(err error) bool {
	if err != nil {
		writeln(s.out, explain(s.app.Game().Language(), s.app.Game().View(context.Background()), err).Error())
		return false
	}
	return true
}

func (s *playSession) reflect(ctx context.Context) {
	g := s.app.Game()
	before := g.View(ctx)
	if !before.CanReflect() {
		// Reflect reports the precise reason without spending anything.
		_, err := g.Reflect(ctx)
		s.report(err)
		return
	}
	writeln(s.out, i18n.T(before.Lang, i18n.ListeningToUniverse))
	s.inflight.Go(func() {
		e, err := g.Reflect(ctx)
		select {
		case s.reflections <- reflection{echo: e, before: before, err: err}:
		case <-ctx.Done():
		}
	})
}

func (s *playSession) share(ctx context.Context, ref string) {
	g := s.app.Game()
	v := g.View(ctx)
	id := ""
	switch {
	case ref != "":
		var err error
		if id, err = resolveID(v.Collection, ref); !s.report(err) {
			return
		}
	case v.Current != nil:
		id = v.Current.ID
	default:
		s.report(game.ErrEchoNotFound)
		return
	}
	text, err := g.Share(id)
	writeln(s.out, text)
	if err != nil {
		writef(s.errOut, "%v\n", err)
		return
	}
	writeln(s.out, i18n.T(v.Lang, i18n.Copied))
}

func (s *playSession) talk(ctx context.Context) {
	l := s.app.Game().Language()
	if s.mic == nil {
		writeln(s.out, "start play with --input and --output to talk with the guide")
		return
	}
	writeln(s.out, i18n.T(l, i18n.GuideTitle))
	writeln(s.out, i18n.T(l, i18n.Connecting))
	if _, err := s.app.Conversations().Start(ctx, s.mic, s.spk, s.observer(l)); err != nil {
		s.report(err)
	}
}

// observer posts connection changes and each finished transcript entry to
// the loop.
func (s *playSession) observer(l i18n.Lang) voice.Observer {
	var (
		mu      sync.Mutex
		printed = make(map[string]bool)
	)
	post := func(msg string) {
		select {
		case s.events <- msg:
		default:
		}
	}
	return voice.Observer{
		OnState: func(st voice.State, _ error) {
			switch st {
			case voice.Connected:
				post(i18n.T(l, i18n.GuideSubtitle))
			case voice.Errored:
				post(i18n.T(l, i18n.ConnectionLost))
			case voice.Closed:
				post(i18n.T(l, i18n.ConversationEnded))
			}
		},
		OnTranscript: func(entries []voice.TranscriptEntry) {
			mu.Lock()
			defer mu.Unlock()
			for _, e := range entries {
				if !e.IsFinal || printed[e.ID] {
					continue
				}
				printed[e.ID] = true
				post(speakerName(l, e.Speaker) + ": " + strings.TrimSpace(e.Text))
			}
		},
	}
}

// audioFlags selects the file-backed audio devices of a conversation.
type audioFlags struct {
	input    string
	output   string
	realtime bool
}

func (f *audioFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&f.input, "input", "", "Microphone input: 16-bit PCM WAV or raw 16 kHz mono PCM file")
	cmd.Flags().StringVar(&f.output, "output", "", "Speaker output: raw 24 kHz mono PCM file (\"-\" for stdout)")
	cmd.Flags().BoolVar(&f.realtime, "realtime", true, "Pace the input file in real time")
	if required {
		_ = cmd.MarkFlagRequired("input")
		_ = cmd.MarkFlagRequired("output")
	}
}

func (f audioFlags) devices() (audio.Microphone, audio.Speaker) {
	return &file.Microphone{Path: f.input, Realtime: f.realtime}, &file.Speaker{Path: f.output}
}
