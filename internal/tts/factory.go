package tts

import (
	"context"
	"net/http"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// EngineSet holds one Engine implementation per locally-supported TTS
// engine, built once at startup and shared by every pipeline.
type EngineSet struct {
	engines map[voice.Engine]Engine
	client  *http.Client
}

// NewEngineSet builds every engine adapter, sharing one HTTP client across
// the HTTP-based engines the way the teacher's own provider registry
// shares a single client across REST-backed providers.
func NewEngineSet() *EngineSet {
	client := NewHTTPClient()
	set := &EngineSet{engines: make(map[voice.Engine]Engine, len(voice.List)), client: client}
	for _, e := range voice.List {
		set.engines[e] = newEngineFor(client, e)
	}
	return set
}

func newEngineFor(client *http.Client, e voice.Engine) Engine {
	switch e {
	case voice.CoeiroInkV2:
		return NewCoeiroInk(client)
	case voice.BouyomiChan:
		return NewBouyomiChan()
	default:
		return NewVoicevoxFamily(client, e)
	}
}

// For returns the Engine implementation backing e, or NoOpEngine if e is
// not recognized (this should not happen; voice.Engine's value set is
// closed and EngineSet covers all of voice.List).
func (s *EngineSet) For(e voice.Engine) Engine {
	if engine, ok := s.engines[e]; ok {
		return engine
	}
	return NoOpEngine{}
}

// Synthesize renders one segment through e, baking volumePercent (0-100)
// into the call for engines that need it applied at speak time rather
// than at playback time. BouyomiChan plays audio itself over its own TCP
// connection and has no separate playback-volume knob, so its volume
// travels with the speak command instead of through the WAV player;
// every other engine ignores volumePercent here and has it applied later
// by internal/audio.Player.
func (s *EngineSet) Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error) {
	engine := s.For(e)
	if bc, ok := engine.(*BouyomiChan); ok {
		return nil, bc.SpeakWithVolume(ctx, text, styleID, int16(volumePercent))
	}
	return engine.Synthesize(ctx, text, speakerUUID, styleID, quality)
}
