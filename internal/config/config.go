// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of soulecho.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageDriver selects the key-value backend holding the save slot.
type StorageDriver string

const (
	StorageFile     StorageDriver = "file"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// IsValid reports whether d is a recognised storage driver.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageFile, StorageSQLite, StoragePostgres, StorageMemory:
		return true
	}
	return false
}

// Config is the root configuration. It is loaded from YAML with [Load] or
// [LoadFromReader]; fields missing from the file keep their [Defaults].
type Config struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	Storage    StorageConfig    `yaml:"storage"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Voice      VoiceConfig      `yaml:"voice"`
	Game       GameConfig       `yaml:"game"`
	Credential CredentialConfig `yaml:"credential"`
	Debug      DebugConfig      `yaml:"debug"`
}

// StorageConfig selects where progress is saved.
type StorageConfig struct {
	// Driver is one of file, sqlite, postgres or memory.
	Driver StorageDriver `yaml:"driver"`

	// Path is the directory of the file driver or the database file of the
	// sqlite driver.
	Path string `yaml:"path"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// ProvidersConfig lists the remote model backends.
type ProvidersConfig struct {
	// Echo lists soul echo generation backends in failover order.
	Echo []ProviderEntry `yaml:"echo"`

	// Live is the realtime voice backend.
	Live ProviderEntry `yaml:"live"`
}

// ProviderEntry is the configuration block shared by every backend. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend (e.g. "gemini", "openai",
	// "anthropic", "gemini-live").
	Name string `yaml:"name"`

	// APIKey overrides the shared credential for this backend.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific values.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig tunes the live conversation.
type VoiceConfig struct {
	// Voice is the prebuilt voice of the guide. Hot-reloadable; applies to
	// the next conversation.
	Voice string `yaml:"voice"`

	// Model overrides providers.live.model for the session.
	Model string `yaml:"model"`

	// InputTranscription requests transcripts of the player's speech.
	InputTranscription bool `yaml:"input_transcription"`

	// OutputTranscription requests transcripts of the guide's speech.
	OutputTranscription bool `yaml:"output_transcription"`
}

// GameConfig tunes the game loop.
type GameConfig struct {
	// TickInterval is the passive focus cadence. Default: 1s.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Language forces the display language ("en" or "zh"). Empty keeps the
	// saved choice. Hot-reloadable.
	Language string `yaml:"language"`
}

// CredentialConfig locates the stored API key.
type CredentialConfig struct {
	// KeyFile stores the key entered with `soulecho setup`.
	KeyFile string `yaml:"key_file"`
}

// DebugConfig configures the local diagnostics server.
type DebugConfig struct {
	// ListenAddr serves /metrics, /healthz and /readyz when non-empty.
	ListenAddr string `yaml:"listen_addr"`
}

// DataDir returns the default directory for saves, keys and config,
// ~/.soulecho, or ".soulecho" when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".soulecho"
	}
	return filepath.Join(home, ".soulecho")
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Defaults returns the configuration used for every field the file and the
// environment leave unset.
func Defaults() *Config {
	dir := DataDir()
	return &Config{
		LogLevel: LogInfo,
		Storage: StorageConfig{
			Driver: StorageFile,
			Path:   dir,
		},
		Providers: ProvidersConfig{
			Echo: []ProviderEntry{{Name: "gemini"}},
			Live: ProviderEntry{Name: "gemini-live"},
		},
		Voice: VoiceConfig{
			Voice:               "Zephyr",
			InputTranscription:  true,
			OutputTranscription: true,
		},
		Game: GameConfig{
			TickInterval: time.Second,
		},
		Credential: CredentialConfig{
			KeyFile: filepath.Join(dir, "api_key"),
		},
	}
}
