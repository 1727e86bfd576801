package game_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/persist"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var lantern = echo.Content{
	Title:       "Lantern of Stillness",
	Description: "A small light is enough to find the next step.",
	Icon:        "🏮",
	Color:       "bg-amber-100",
	Rarity:      echo.Rare,
}

// stubGenerator records Generate calls and returns a fixed result.
type stubGenerator struct {
	mu     sync.Mutex
	result echo.Result
	levels []int
	ctxErr []error
}

func (s *stubGenerator) Generate(ctx context.Context, level int) echo.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, level)
	s.ctxErr = append(s.ctxErr, ctx.Err())
	return s.result
}

func (s *stubGenerator) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.levels...)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// seed stores a snapshot in kv.
func seed(t *testing.T, kv persist.KV, snap game.Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Put(context.Background(), game.StorageKey, data); err != nil {
		t.Fatal(err)
	}
}

// loadSaved reads back what the game persisted.
func loadSaved(t *testing.T, kv persist.KV) game.Snapshot {
	t.Helper()
	snap, ok := game.NewSnapshotStore(kv).Load(context.Background())
	if !ok {
		t.Fatal("no saved snapshot")
	}
	return snap
}

type fixture struct {
	kv    *persist.MemoryKV
	gen   *stubGenerator
	cred  *credential.Stub
	clip  []string
	game  *game.Game
	clipM sync.Mutex
}

func newFixture(t *testing.T, focus float64, opts ...game.Option) *fixture {
	t.Helper()
	f := &fixture{
		kv:   persist.NewMemoryKV(),
		gen:  &stubGenerator{result: echo.Result{Content: lantern}},
		cred: &credential.Stub{Secret: "key"},
	}
	stats := game.DefaultStats()
	stats.Focus = focus
	stats.MaxFocus = max(stats.MaxFocus, focus)
	seed(t, f.kv, game.Snapshot{Stats: stats, Lang: "en"})

	ids := 0
	base := []game.Option{
		game.WithMetrics(testMetrics(t)),
		game.WithClock(func() time.Time { return fixedNow }),
		game.WithIDs(func() string {
			ids++
			return "echo-" + string(rune('0'+ids))
		}),
		game.WithClipboard(func(s string) error {
			f.clipM.Lock()
			defer f.clipM.Unlock()
			f.clip = append(f.clip, s)
			return nil
		}),
	}
	f.game = game.New(context.Background(), game.NewSnapshotStore(f.kv), f.gen, f.cred, append(base, opts...)...)
	return f
}
