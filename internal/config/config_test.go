package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/soulecho/internal/config"
)

const fullYAML = `
log_level: debug
storage:
  driver: sqlite
  path: /tmp/soulecho.db
providers:
  echo:
    - name: gemini
      model: gemini-2.5-flash
    - name: openai
      model: gpt-4o-mini
      api_key: sk-test
  live:
    name: gemini-live
voice:
  voice: Kore
  input_transcription: true
  output_transcription: false
game:
  tick_interval: 500ms
  language: zh
credential:
  key_file: /tmp/key
debug:
  listen_addr: 127.0.0.1:9464
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Storage.Driver != config.StorageSQLite || cfg.Storage.Path != "/tmp/soulecho.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if len(cfg.Providers.Echo) != 2 || cfg.Providers.Echo[1].Name != "openai" || cfg.Providers.Echo[1].APIKey != "sk-test" {
		t.Errorf("Providers.Echo = %+v", cfg.Providers.Echo)
	}
	if cfg.Providers.Live.Name != "gemini-live" {
		t.Errorf("Providers.Live = %+v", cfg.Providers.Live)
	}
	if cfg.Voice.Voice != "Kore" || !cfg.Voice.InputTranscription || cfg.Voice.OutputTranscription {
		t.Errorf("Voice = %+v", cfg.Voice)
	}
	if cfg.Game.TickInterval != 500*time.Millisecond || cfg.Game.Language != "zh" {
		t.Errorf("Game = %+v", cfg.Game)
	}
	if cfg.Credential.KeyFile != "/tmp/key" {
		t.Errorf("Credential = %+v", cfg.Credential)
	}
	if cfg.Debug.ListenAddr != "127.0.0.1:9464" {
		t.Errorf("Debug = %+v", cfg.Debug)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	def := config.Defaults()
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Storage.Driver != config.StorageFile || cfg.Storage.Path != def.Storage.Path {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if len(cfg.Providers.Echo) != 1 || cfg.Providers.Echo[0].Name != "gemini" {
		t.Errorf("Providers.Echo = %+v", cfg.Providers.Echo)
	}
	if cfg.Voice.Voice != "Zephyr" || !cfg.Voice.InputTranscription || !cfg.Voice.OutputTranscription {
		t.Errorf("Voice = %+v", cfg.Voice)
	}
	if cfg.Game.TickInterval != time.Second {
		t.Errorf("TickInterval = %v", cfg.Game.TickInterval)
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("voice:\n  voice: Puck\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Voice.Voice != "Puck" {
		t.Errorf("Voice = %q", cfg.Voice.Voice)
	}
	if !cfg.Voice.InputTranscription {
		t.Error("InputTranscription default lost")
	}
	if cfg.Game.TickInterval != time.Second {
		t.Errorf("TickInterval default lost: %v", cfg.Game.TickInterval)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("npcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != config.StorageFile {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != config.StorageMemory {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	if got := config.DefaultPath(); filepath.Base(got) != "config.yaml" || filepath.Base(filepath.Dir(got)) != ".soulecho" {
		t.Errorf("DefaultPath = %q", got)
	}
}
