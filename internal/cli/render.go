package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/voice"
)

// barWidth is the number of cells in the clarity bar.
const barWidth = 20

// formatFocus prints clarity without a trailing ".0".
func formatFocus(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// clarityBar renders progress in [0, 1] as a bar of barWidth cells.
func clarityBar(progress float64) string {
	filled := int(progress*barWidth + 0.5)
	filled = max(0, min(barWidth, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func onOff(l i18n.Lang, on bool) string {
	if on {
		return i18n.T(l, i18n.On)
	}
	return i18n.T(l, i18n.Off)
}

// renderStatus prints the player overview.
func renderStatus(w io.Writer, v game.View) {
	l := v.Lang
	writef(w, "%s · %s %d\n", i18n.T(l, i18n.SeekerOfCalm), i18n.T(l, i18n.Level), v.Stats.Level)
	writef(w, "%s  [%s]  %s / %s\n",
		i18n.T(l, i18n.MentalClarity), clarityBar(v.Progress()),
		formatFocus(v.Stats.Focus), formatFocus(v.Stats.MaxFocus))
	writef(w, "%s  %d\n", i18n.T(l, i18n.Journal), len(v.Collection))
	writef(w, "%s  %s\n", i18n.T(l, i18n.Music), onOff(l, v.Music))

	switch {
	case !v.CredentialReady:
		writeln(w, i18n.T(l, i18n.CredentialMissing))
	case v.CanReflect():
		writef(w, "%s: %s\n", i18n.T(l, i18n.FindEpiphany), i18n.T(l, i18n.RequiresClarity, "cost", formatFocus(game.FocusCost)))
	}
}

// renderEcho prints one echo as a card.
func renderEcho(w io.Writer, l i18n.Lang, e game.Echo, heading i18n.Key) {
	if heading != "" {
		writef(w, "✨ %s\n", i18n.T(l, heading))
	}
	writef(w, "%s  %s  [%s]\n", e.Icon, e.Title, e.Rarity)
	writef(w, "   %s\n", e.Description)
	writef(w, "   %s · %s\n", e.ID, e.DateCollected.Local().Format("2006-01-02"))
}

// renderJournal prints the collection, newest first.
func renderJournal(w io.Writer, v game.View) {
	l := v.Lang
	writeln(w, i18n.T(l, i18n.YourJournal))
	if len(v.Collection) == 0 {
		writeln(w, "  "+i18n.T(l, i18n.NoEchoes))
		writeln(w, "  "+i18n.T(l, i18n.NoEchoesSub))
		return
	}
	for _, e := range v.Collection {
		writef(w, "  %-8s  %s %-32s  %-9s  %s\n",
			shortID(e.ID), e.Icon, e.Title, e.Rarity, e.DateCollected.Local().Format("2006-01-02"))
	}
}

// renderTranscript prints the finished conversation.
func renderTranscript(w io.Writer, l i18n.Lang, entries []voice.TranscriptEntry) {
	for _, e := range entries {
		writef(w, "%s: %s\n", speakerName(l, e.Speaker), strings.TrimSpace(e.Text))
	}
}

func speakerName(l i18n.Lang, sp voice.Speaker) string {
	if sp == voice.User {
		return i18n.T(l, i18n.You)
	}
	return i18n.T(l, i18n.Guide)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID finds the collected echo whose ID equals ref or uniquely starts
// with it.
func resolveID(collection []game.Echo, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty id", game.ErrEchoNotFound)
	}
	var match string
	for _, e := range collection {
		if e.ID == ref {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %q is ambiguous", game.ErrEchoNotFound, ref)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", game.ErrEchoNotFound, ref)
	}
	return match, nil
}
