// Package config loads and saves the worker's persisted configuration —
// the companion CLI's concern, not the worker's. The worker itself only
// ever sees a WorkerConfig value arrive over IPC in an Init command.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// WorkerConfig mirrors the settings the worker tracks in internal/state:
// global volume and punctuation-splitting, each ghost's voice table, the
// fallback voice, and per-engine path/auto-start settings. It doubles as
// the Init command's config payload and the shape persisted to vars.yaml.
type WorkerConfig struct {
	Volume             float64                         `json:"volume"`
	SpeakByPunctuation bool                             `json:"speak_by_punctuation"`
	GhostsVoices       map[string]voice.GhostVoiceInfo  `json:"ghosts_voices"`
	InitialVoice       voice.CharacterVoice              `json:"initial_voice"`
	EngineAutoStart    map[voice.Engine]bool             `json:"engine_auto_start"`
	EnginePath         map[voice.Engine]string           `json:"engine_path"`
}

// DefaultConfig returns the configuration a freshly installed ghost
// starts with: full volume, punctuation splitting on, no ghosts
// configured yet.
func DefaultConfig() *WorkerConfig {
	return &WorkerConfig{
		Volume:             1.0,
		SpeakByPunctuation: true,
		GhostsVoices:       make(map[string]voice.GhostVoiceInfo),
		InitialVoice:       voice.NoVoice(),
		EngineAutoStart:    make(map[voice.Engine]bool),
		EnginePath:         make(map[voice.Engine]string),
	}
}

// Load reads vars.yaml from dllDir, writing out the defaults first if no
// file exists yet — the same "read, or seed and read" shape as the
// teacher's own config.Load. Engine keys round-trip through encoding/json
// rather than viper's own decoder so that voice.Engine's TextMarshaler
// is honored for map keys; viper/mapstructure does not apply that hook
// by default.
func Load(dllDir string) (*WorkerConfig, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(dllDir, 0755); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigName("vars")
	v.SetConfigType("yaml")
	v.AddConfigPath(dllDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		if err := Save(dllDir, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to <dllDir>/vars.yaml.
func Save(dllDir string, cfg *WorkerConfig) error {
	if err := os.MkdirAll(dllDir, 0755); err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.MergeConfigMap(settings); err != nil {
		return err
	}
	return v.WriteConfigAs(filepath.Join(dllDir, "vars.yaml"))
}
