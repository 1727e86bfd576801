package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/pkg/persist"
	"github.com/MrWong99/soulecho/pkg/persist/postgres"
	"github.com/MrWong99/soulecho/pkg/persist/sqlite"
	"github.com/MrWong99/soulecho/pkg/provider/live"
	livegemini "github.com/MrWong99/soulecho/pkg/provider/live/gemini"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
	"github.com/MrWong99/soulecho/pkg/provider/llm/anyllm"
	"github.com/MrWong99/soulecho/pkg/provider/llm/gemini"
	"github.com/MrWong99/soulecho/pkg/provider/llm/openai"
)

// sqliteFile is the database name inside storage.path for the sqlite driver
// when the path names a directory.
const sqliteFile = "soulecho.db"

// RegisterBuiltins wires every backend that ships with soulecho into reg.
//
// Echo backends: gemini and openai use their native SDKs; anthropic, ollama,
// deepseek, mistral, groq, llamacpp and llamafile go through any-llm.
// Live backends: gemini-live. Storage: file, sqlite, postgres, memory.
func RegisterBuiltins(reg *config.Registry) {
	// ── Echo ──────────────────────────────────────────────────────────────────

	reg.RegisterEcho("gemini", func(ctx context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(ctx, entry.APIKey, opts...)
	})

	reg.RegisterEcho("openai", func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		model := entry.Model
		if model == "" {
			model = anyllm.DefaultModel("openai")
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	for _, name := range []string{"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"} {
		reg.RegisterEcho(name, func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini-live", func(_ context.Context, entry config.ProviderEntry) (live.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("gemini-live: api key must not be empty")
		}
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})

	// ── Storage ───────────────────────────────────────────────────────────────

	reg.RegisterStorage(config.StorageFile, func(_ context.Context, cfg config.StorageConfig) (persist.KV, error) {
		return persist.NewFileKV(cfg.Path)
	})

	reg.RegisterStorage(config.StorageSQLite, func(ctx context.Context, cfg config.StorageConfig) (persist.KV, error) {
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, sqliteFile)
		}
		return sqlite.Open(ctx, path)
	})

	reg.RegisterStorage(config.StoragePostgres, func(ctx context.Context, cfg config.StorageConfig) (persist.KV, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage.dsn is required for the postgres driver")
		}
		return postgres.Open(ctx, cfg.DSN)
	})

	reg.RegisterStorage(config.StorageMemory, func(context.Context, config.StorageConfig) (persist.KV, error) {
		return persist.NewMemoryKV(), nil
	})

	slog.Debug("registered backends", "echo", reg.EchoNames(), "live", reg.LiveNames())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optDuration reads a duration written as a Go duration string ("30s") or a
// number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
