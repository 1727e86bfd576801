package game

import (
	"context"
	"time"
)

// Tick adds [TickGain] clarity while idle and below the cap. It reports
// whether clarity changed.
func (g *Game) Tick(ctx context.Context) bool {
	return g.gain(ctx, "tick", TickGain, false)
}

// Breathe adds [BreatheGain] clarity, clamped to the cap. It reports false
// when the game is not idle.
func (g *Game) Breathe(ctx context.Context) bool {
	return g.gain(ctx, "breathe", BreatheGain, true)
}

func (g *Game) gain(ctx context.Context, source string, amount float64, reportIdle bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Idle {
		return false
	}
	before := g.stats.Focus
	g.stats.Focus = min(before+amount, g.stats.MaxFocus)
	gained := g.stats.Focus - before
	if gained > 0 {
		g.saveLocked(ctx)
		g.metrics.RecordFocusGain(ctx, source, gained)
	}
	if reportIdle {
		return true
	}
	return gained > 0
}

// RunFocus ticks g every interval until ctx is done. A non-positive interval
// uses [TickInterval].
func RunFocus(ctx context.Context, g *Game, interval time.Duration) {
	if interval <= 0 {
		interval = TickInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Tick(ctx)
		}
	}
}
