package voice

import (
	"sync"
	"time"

	"github.com/MrWong99/soulecho/pkg/audio"
)

// Player schedules model audio for gapless playback. Each buffer starts
// when the previous one ends, or immediately when playback has caught up.
type Player struct {
	out        audio.Output
	onSpeaking func(bool)

	mu        sync.Mutex
	nextStart time.Duration
	playing   map[*scheduled]struct{}
	speaking  bool
}

type scheduled struct {
	src audio.Source
}

// NewPlayer returns a player on out. onSpeaking, if set, is called when the
// speaking indicator changes.
func NewPlayer(out audio.Output, onSpeaking func(bool)) *Player {
	return &Player{
		out:        out,
		onSpeaking: onSpeaking,
		playing:    make(map[*scheduled]struct{}),
	}
}

// Enqueue schedules buf and returns its start time on the output clock.
func (p *Player) Enqueue(buf audio.Buffer) time.Duration {
	p.mu.Lock()
	start := max(p.out.Now(), p.nextStart)
	s := &scheduled{}
	p.playing[s] = struct{}{}
	s.src = p.out.Play(buf, start, func() { p.ended(s) })
	p.nextStart = start + buf.Duration()
	changed := !p.speaking
	p.speaking = true
	p.mu.Unlock()

	if changed {
		p.notify(true)
	}
	return start
}

func (p *Player) ended(s *scheduled) {
	p.mu.Lock()
	if _, ok := p.playing[s]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.playing, s)
	changed := len(p.playing) == 0 && p.speaking
	if changed {
		p.speaking = false
	}
	p.mu.Unlock()

	if changed {
		p.notify(false)
	}
}

// Interrupt stops and discards every scheduled buffer and resets the
// schedule. It returns the number of buffers discarded.
func (p *Player) Interrupt() int {
	p.mu.Lock()
	pending := make([]audio.Source, 0, len(p.playing))
	for s := range p.playing {
		if s.src != nil {
			pending = append(pending, s.src)
		}
	}
	clear(p.playing)
	p.nextStart = 0
	changed := p.speaking
	p.speaking = false
	p.mu.Unlock()

	for _, src := range pending {
		src.Stop()
	}
	if changed {
		p.notify(false)
	}
	return len(pending)
}

// Speaking reports whether any buffer is scheduled or playing.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

func (p *Player) notify(speaking bool) {
	if p.onSpeaking != nil {
		p.onSpeaking(speaking)
	}
}
