package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log
// level, the guide voice and the forced language apply without a restart;
// every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     string

	LanguageChanged bool
	NewLanguage     string

	// RestartRequired names the top-level sections that changed but are
	// only read at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && !d.LanguageChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.Voice.Voice != new.Voice.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Voice.Voice
	}
	if old.Game.Language != new.Game.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Game.Language
	}

	oldVoice, newVoice := old.Voice, new.Voice
	oldVoice.Voice, newVoice.Voice = "", ""
	oldGame, newGame := old.Game, new.Game
	oldGame.Language, newGame.Language = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"storage", old.Storage, new.Storage},
		{"providers", old.Providers, new.Providers},
		{"voice", oldVoice, newVoice},
		{"game", oldGame, newGame},
		{"credential", old.Credential, new.Credential},
		{"debug", old.Debug, new.Debug},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
