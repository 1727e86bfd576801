package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/pkg/provider/live/gemini"
)

// ValidProviderNames lists the built-in backend names per kind. [Validate]
// warns about names outside this list since third-party backends may be
// registered at runtime.
var ValidProviderNames = map[string][]string{
	"echo": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"live": {"gemini-live"},
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config: file not found, using defaults", "path", path)
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r onto [Defaults] and validates the
// result. It does not read the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, nil)
}

func parse(data []byte, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		if err := ApplyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with SOULECHO_* environment variables.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	cfg.LogLevel = LogLevel(get("SOULECHO_LOG_LEVEL", string(cfg.LogLevel)))
	cfg.Storage.Driver = StorageDriver(get("SOULECHO_STORAGE_DRIVER", string(cfg.Storage.Driver)))
	cfg.Storage.Path = get("SOULECHO_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.DSN = get("SOULECHO_STORAGE_DSN", cfg.Storage.DSN)
	cfg.Voice.Voice = get("SOULECHO_VOICE", cfg.Voice.Voice)
	cfg.Game.Language = get("SOULECHO_LANG", cfg.Game.Language)
	cfg.Credential.KeyFile = get("SOULECHO_KEY_FILE", cfg.Credential.KeyFile)
	cfg.Debug.ListenAddr = get("SOULECHO_DEBUG_ADDR", cfg.Debug.ListenAddr)

	if v := get("SOULECHO_TICK_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SOULECHO_TICK_INTERVAL: %w", err)
		}
		cfg.Game.TickInterval = d
	}
	return nil
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	switch {
	case !cfg.Storage.Driver.IsValid():
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: file, sqlite, postgres, memory", cfg.Storage.Driver))
	case (cfg.Storage.Driver == StorageFile || cfg.Storage.Driver == StorageSQLite) && cfg.Storage.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required for driver %q", cfg.Storage.Driver))
	case cfg.Storage.Driver == StoragePostgres && cfg.Storage.DSN == "":
		errs = append(errs, errors.New("storage.dsn is required for driver \"postgres\""))
	}

	if len(cfg.Providers.Echo) == 0 {
		slog.Warn("config: providers.echo is empty; only built-in echoes will be found")
	}
	seen := make(map[string]int, len(cfg.Providers.Echo))
	for i, p := range cfg.Providers.Echo {
		prefix := fmt.Sprintf("providers.echo[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := p.Name + "/" + p.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates providers.echo[%d] (%s)", prefix, prev, key))
		}
		seen[key] = i
		warnUnknownProvider("echo", p.Name)
	}
	if cfg.Providers.Live.Name == "" {
		slog.Warn("config: providers.live is not configured; conversations are disabled")
	} else {
		warnUnknownProvider("live", cfg.Providers.Live.Name)
	}
	if cfg.Providers.Live.Name == "gemini-live" && cfg.Voice.Voice != "" && !gemini.IsKnownVoice(cfg.Voice.Voice) {
		errs = append(errs, fmt.Errorf("voice.voice %q is invalid for gemini-live; valid values: %s",
			cfg.Voice.Voice, strings.Join(gemini.Voices, ", ")))
	}

	if cfg.Game.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("game.tick_interval %s must be positive", cfg.Game.TickInterval))
	}
	if cfg.Game.Language != "" && !i18n.Lang(cfg.Game.Language).IsValid() {
		errs = append(errs, fmt.Errorf("game.language %q is invalid; valid values: en, zh", cfg.Game.Language))
	}

	if addr := cfg.Debug.ListenAddr; addr != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("debug.listen_addr %q: %w", addr, err))
		} else if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			slog.Warn("config: debug server is reachable beyond this machine", "listen_addr", addr)
		}
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(kind, name string) {
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name; may be a typo or a third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
