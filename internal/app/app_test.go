package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/game"
	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/persist"
	"github.com/MrWong99/soulecho/pkg/provider/live"
	livemock "github.com/MrWong99/soulecho/pkg/provider/live/mock"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
	llmmock "github.com/MrWong99/soulecho/pkg/provider/llm/mock"
)

// ── Fixtures ─────────────────────────────────────────────────────────────────

const echoJSON = `{"title":"Quiet Harbor","description":"Rest is part of the voyage.","icon":"⚓","color":"bg-sky-100","rarity":"Rare"}`

// closeCountingKV counts Close calls on top of a memory store.
type closeCountingKV struct {
	*persist.MemoryKV
	mu     sync.Mutex
	closes int
}

func (k *closeCountingKV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closes++
	return nil
}

func (k *closeCountingKV) closeCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closes
}

// fixture is a registry whose backends are mocks.
type fixture struct {
	reg  *config.Registry
	kv   *closeCountingKV
	live *livemock.Provider

	mu      sync.Mutex
	created []config.ProviderEntry
	echo    map[string]*llmmock.Provider
}

func newFixture() *fixture {
	f := &fixture{
		reg:  config.NewRegistry(),
		kv:   &closeCountingKV{MemoryKV: persist.NewMemoryKV()},
		live: &livemock.Provider{},
		echo: map[string]*llmmock.Provider{
			"primary":   {CompleteResponse: &llm.CompletionResponse{Content: echoJSON}, Caps: llm.Capabilities{Model: "p-1", StructuredOutput: true}},
			"secondary": {CompleteResponse: &llm.CompletionResponse{Content: echoJSON}, Caps: llm.Capabilities{Model: "s-1", StructuredOutput: true}},
		},
	}
	for name := range f.echo {
		f.reg.RegisterEcho(name, func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.created = append(f.created, entry)
			return f.echo[name], nil
		})
	}
	f.reg.RegisterEcho("broken", func(context.Context, config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("broken: cannot build")
	})
	f.reg.RegisterLive("mock-live", func(context.Context, config.ProviderEntry) (live.Provider, error) {
		return f.live, nil
	})
	f.reg.RegisterStorage(config.StorageMemory, func(context.Context, config.StorageConfig) (persist.KV, error) {
		return f.kv, nil
	})
	return f
}

func (f *fixture) createdEntries() []config.ProviderEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]config.ProviderEntry(nil), f.created...)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Storage = config.StorageConfig{Driver: config.StorageMemory}
	cfg.Providers.Echo = []config.ProviderEntry{{Name: "primary"}, {Name: "secondary"}}
	cfg.Providers.Live = config.ProviderEntry{Name: "mock-live"}
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, f *fixture, cfg *config.Config, cred credential.Checker, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithRegistry(f.reg),
		app.WithCredential(cred),
		app.WithMetrics(testMetrics(t)),
		app.WithGameOptions(game.WithClipboard(func(string) error { return nil })),
	}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func seedFocus(t *testing.T, kv persist.KV, focus float64) {
	t.Helper()
	snap := game.DefaultSnapshot()
	snap.Stats.Focus = focus
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Put(context.Background(), game.StorageKey, data); err != nil {
		t.Fatal(err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── New / Shutdown ───────────────────────────────────────────────────────────

func TestNew_WiresGameToConfiguredBackends(t *testing.T) {
	t.Parallel()

	f := newFixture()
	seedFocus(t, f.kv, 100)
	a := newApp(t, f, testConfig(), &credential.Stub{Secret: "key-1"})

	e, err := a.Game().Reflect(context.Background())
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if e.Title != "Quiet Harbor" || e.Rarity != echo.Rare {
		t.Errorf("echo = %+v", e)
	}

	calls := f.echo["primary"].Calls()
	if len(calls) != 1 {
		t.Fatalf("primary calls = %d, want 1", len(calls))
	}
	if calls[0].Req.SchemaName != "soul_echo" {
		t.Errorf("SchemaName = %q", calls[0].Req.SchemaName)
	}
	if calls[0].Req.SystemPrompt != "" {
		t.Error("schema repeated in prompt although every backend enforces it")
	}
	if got := len(f.echo["secondary"].Calls()); got != 0 {
		t.Errorf("secondary calls = %d, want 0", got)
	}

	// The reflection was persisted to the configured store.
	snap, ok := game.NewSnapshotStore(f.kv).Load(context.Background())
	if !ok || len(snap.Collection) != 1 || snap.Stats.Focus != 0 {
		t.Errorf("saved snapshot = %+v (ok=%v)", snap, ok)
	}
}

func TestNew_InjectedGenerator(t *testing.T) {
	t.Parallel()

	f := newFixture()
	gen := stubGenerator{res: echo.Result{Content: echo.Fallbacks()[0], Fallback: true, Err: errors.New("offline")}}
	seedFocus(t, f.kv, 100)
	cred := &credential.Stub{Secret: "key-1"}
	a := newApp(t, f, testConfig(), cred, app.WithGenerator(gen))

	if _, err := a.Game().Reflect(context.Background()); !errors.Is(err, game.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if got := len(f.createdEntries()); got != 0 {
		t.Errorf("echo backends built = %d, want 0 with injected generator", got)
	}
	if names := a.Health().Names(); slices.Contains(names, "echo_providers") {
		t.Errorf("health names = %v, breaker check without chain", names)
	}
}

type stubGenerator struct{ res echo.Result }

func (s stubGenerator) Generate(context.Context, int) echo.Result { return s.res }

func TestNew_ForcedLanguageOverridesSave(t *testing.T) {
	t.Parallel()

	f := newFixture()
	seedFocus(t, f.kv, 10)
	cfg := testConfig()
	cfg.Game.Language = "zh"
	a := newApp(t, f, cfg, &credential.Stub{})

	if got := a.Game().Language(); got != i18n.Chinese {
		t.Errorf("Language = %q, want zh", got)
	}
}

func TestNew_StorageNotRegistered(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cfg := testConfig()
	cfg.Storage.Driver = config.StoragePostgres

	_, err := app.New(context.Background(), cfg,
		app.WithRegistry(f.reg),
		app.WithCredential(&credential.Stub{}),
		app.WithMetrics(testMetrics(t)),
	)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestShutdown_ClosesStorageOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, err := app.New(context.Background(), testConfig(),
		app.WithRegistry(f.reg),
		app.WithCredential(&credential.Stub{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if got := f.kv.closeCount(); got != 1 {
		t.Errorf("storage closed %d times, want 1", got)
	}
}

func TestShutdown_InjectedStorageNotClosed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	kv := &closeCountingKV{MemoryKV: persist.NewMemoryKV()}
	a := newApp(t, f, testConfig(), &credential.Stub{}, app.WithStorage(kv))
	_ = a.Shutdown(context.Background())

	if got := kv.closeCount(); got != 0 {
		t.Errorf("injected storage closed %d times, want 0", got)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, err := app.New(context.Background(), testConfig(),
		app.WithRegistry(f.reg),
		app.WithCredential(&credential.Stub{}),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := f.kv.closeCount(); got != 0 {
		t.Errorf("storage closed %d times after expired shutdown", got)
	}
}

// ── Hot reload ───────────────────────────────────────────────────────────────

func TestReload_AppliesHotFieldsOnly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	level := new(slog.LevelVar)
	cfg := testConfig()
	a := newApp(t, f, cfg, &credential.Stub{}, app.WithLogLevel(level))

	next := testConfig()
	next.LogLevel = config.LogDebug
	next.Voice.Voice = "Puck"
	next.Game.Language = "zh"
	next.Storage.Driver = config.StorageSQLite

	a.Reload(context.Background(), next, config.Diff(cfg, next))

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if got := a.Game().Language(); got != i18n.Chinese {
		t.Errorf("Language = %q, want zh", got)
	}
	cur := a.Config()
	if cur.Voice.Voice != "Puck" || cur.LogLevel != config.LogDebug {
		t.Errorf("hot fields not applied: voice=%q level=%q", cur.Voice.Voice, cur.LogLevel)
	}
	if cur.Storage.Driver != config.StorageMemory {
		t.Errorf("storage driver = %q, restart-only change applied", cur.Storage.Driver)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ── Diagnostics ──────────────────────────────────────────────────────────────

func TestDebugHandler_Probes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cred       *credential.Stub
		wantStatus string
	}{
		{name: "with key", cred: &credential.Stub{Secret: "key-1"}, wantStatus: "ok"},
		{name: "without key", cred: &credential.Stub{}, wantStatus: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newApp(t, newFixture(), testConfig(), tt.cred)
			srv := httptest.NewServer(a.DebugHandler())
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/healthz")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("healthz status = %d", resp.StatusCode)
			}

			resp, err = http.Get(srv.URL + "/readyz")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode readyz: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("readyz status = %q, want %q (checks %v)", body.Status, tt.wantStatus, body.Checks)
			}
			if body.Checks["storage"] != "ok" {
				t.Errorf("storage check = %q", body.Checks["storage"])
			}
		})
	}
}

func TestServe_NoAddressReturnsImmediately(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Debug.ListenAddr = ""
	a := newApp(t, newFixture(), cfg, &credential.Stub{})
	if err := a.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestServe_StopsWithContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Debug.ListenAddr = "127.0.0.1:0"
	a := newApp(t, newFixture(), cfg, &credential.Stub{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
