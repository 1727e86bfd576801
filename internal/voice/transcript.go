package voice

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/MrWong99/soulecho/pkg/provider/live"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	User Speaker = "user"
	AI   Speaker = "ai"
)

// TranscriptEntry is one run of speech by a single speaker.
type TranscriptEntry struct {
	ID      string
	Speaker Speaker
	Text    string
	IsFinal bool
}

// Transcript assembles transcription fragments into entries. Consecutive
// fragments of one speaker are joined into the last entry until a turn
// completes or the other speaker talks.
type Transcript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
	newID   func() string
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{newID: func() string { return ulid.Make().String() }}
}

// Append adds a fragment for sp and returns the entry it landed in.
func (t *Transcript) Append(sp Speaker, text string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(sp, text)
}

func (t *Transcript) appendLocked(sp Speaker, text string) TranscriptEntry {
	if n := len(t.entries); n > 0 {
		last := &t.entries[n-1]
		if last.Speaker == sp && !last.IsFinal {
			last.Text += text
			return *last
		}
	}
	e := TranscriptEntry{ID: t.newID(), Speaker: sp, Text: text}
	t.entries = append(t.entries, e)
	return e
}

// CompleteTurn seals the most recent entry. It reports false when the
// transcript is empty.
func (t *Transcript) CompleteTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completeLocked()
}

func (t *Transcript) completeLocked() bool {
	n := len(t.entries)
	if n == 0 {
		return false
	}
	t.entries[n-1].IsFinal = true
	return true
}

// Apply processes the transcription parts of msg: user speech first, then
// model speech, then turn completion. It reports whether anything changed.
func (t *Transcript) Apply(msg live.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	if msg.InputTranscription != "" {
		t.appendLocked(User, msg.InputTranscription)
		changed = true
	}
	if msg.OutputTranscription != "" {
		t.appendLocked(AI, msg.OutputTranscription)
		changed = true
	}
	if msg.TurnComplete && t.completeLocked() {
		changed = true
	}
	return changed
}

// Entries returns a copy of the entries in arrival order.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranscriptEntry(nil), t.entries...)
}
