// Package voice holds the value types shared by every component of the
// speech worker: the fixed TTS engine table, the voice a ghost's scope is
// bound to, and the speaker/style catalog each engine reports back.
package voice

import "fmt"

// Engine identifies one of the locally-installed TTS engine families the
// worker knows how to drive. Each engine owns a single, fixed TCP port.
type Engine int

const (
	CoeiroInkV2 Engine = iota
	CoeiroInkV1
	VoiceVox
	Lmroid
	ShareVox
	ItVoice
	AivisSpeech
	BouyomiChan
)

// List enumerates every known engine in a stable order, matching the
// order the connection prober checks them in.
var List = []Engine{
	CoeiroInkV2,
	CoeiroInkV1,
	VoiceVox,
	Lmroid,
	ShareVox,
	ItVoice,
	AivisSpeech,
	BouyomiChan,
}

var portTable = map[Engine]int{
	CoeiroInkV2: 50032,
	CoeiroInkV1: 50031,
	VoiceVox:    50021,
	Lmroid:      49973,
	ShareVox:    50025,
	ItVoice:     49540,
	AivisSpeech: 10101,
	BouyomiChan: 50001,
}

var nameTable = map[Engine]string{
	CoeiroInkV2: "COEIROINKv2",
	CoeiroInkV1: "COEIROINKv1",
	VoiceVox:    "VOICEVOX",
	Lmroid:      "LMROID",
	ShareVox:    "SHAREVOX",
	ItVoice:     "ITVOICE",
	AivisSpeech: "AivisSpeech",
	BouyomiChan: "BouyomiChan",
}

var portToEngine = func() map[int]Engine {
	m := make(map[int]Engine, len(portTable))
	for engine, port := range portTable {
		if _, dup := m[port]; dup {
			panic(fmt.Sprintf("voice: port %d is claimed by more than one engine", port))
		}
		m[port] = engine
	}
	return m
}()

// Port returns the engine's fixed TCP port.
func (e Engine) Port() int { return portTable[e] }

// Name returns the engine's human-readable, display name.
func (e Engine) Name() string {
	if n, ok := nameTable[e]; ok {
		return n
	}
	return "unknown"
}

func (e Engine) String() string { return e.Name() }

// MarshalText implements encoding.TextMarshaler so Engine can be used as a
// JSON object key and as a plain JSON string value.
func (e Engine) MarshalText() ([]byte, error) {
	if _, ok := nameTable[e]; !ok {
		return nil, fmt.Errorf("voice: unknown engine %d", int(e))
	}
	return []byte(nameTable[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Engine) UnmarshalText(text []byte) error {
	s := string(text)
	for engine, name := range nameTable {
		if name == s {
			*e = engine
			return nil
		}
	}
	return fmt.Errorf("voice: unknown engine name %q", s)
}

// IsVoiceVoxFamily reports whether the engine speaks the two-step
// audio_query/synthesis VOICEVOX wire protocol.
func (e Engine) IsVoiceVoxFamily() bool {
	switch e {
	case CoeiroInkV1, VoiceVox, Lmroid, ShareVox, ItVoice, AivisSpeech:
		return true
	default:
		return false
	}
}

// FromPort looks up the engine bound to a TCP port, if any.
func FromPort(port int) (Engine, bool) {
	e, ok := portToEngine[port]
	return e, ok
}

// NoVoiceUUID is the sentinel speaker UUID meaning "this scope has no
// voice assigned; do not speak for it."
const NoVoiceUUID = "dummy"

// CharacterVoice binds a scope (or a whole ghost, as the default) to one
// speaker/style on one engine, identified by the engine's port.
type CharacterVoice struct {
	Port        int    `json:"port"`
	SpeakerUUID string `json:"speaker_uuid"`
	StyleID     int    `json:"style_id"`
}

// NoVoice returns the CharacterVoice value meaning "unassigned."
func NoVoice() CharacterVoice {
	return CharacterVoice{
		Port:        VoiceVox.Port(),
		SpeakerUUID: NoVoiceUUID,
		StyleID:     -1,
	}
}

// VoiceQuality carries the VOICEVOX-family prosody overlay applied on top
// of whatever audio_query returns, before synthesis.
type VoiceQuality struct {
	SpeedScale      float64 `json:"speed_scale"`
	PitchScale      float64 `json:"pitch_scale"`
	IntonationScale float64 `json:"intonation_scale"`
}

// DefaultVoiceQuality returns the neutral prosody overlay (no change from
// what audio_query produced).
func DefaultVoiceQuality() VoiceQuality {
	return VoiceQuality{SpeedScale: 1.0, PitchScale: 0.0, IntonationScale: 1.0}
}

// GhostVoiceInfo is one ghost's full voice configuration: the per-scope
// voice table and whether newlines in its script should be treated as
// sentence boundaries.
type GhostVoiceInfo struct {
	// Voices maps a sakura-script scope number to the voice assigned to
	// it. A nil entry at index i means "no voice configured for scope i;
	// fall back to the worker's configured initial voice."
	Voices         []*CharacterVoice `json:"voices"`
	DevideByLines  bool              `json:"devide_by_lines"`
}

// Style is one speaking style a speaker supports.
type Style struct {
	StyleName *string `json:"style_name"`
	StyleID   *int    `json:"style_id"`
}

// SpeakerInfo is one speaker an engine reports, normalized from whichever
// of the two wire shapes (COEIROINK v2 or VOICEVOX family) produced it.
type SpeakerInfo struct {
	SpeakerName string  `json:"speaker_name"`
	SpeakerUUID string  `json:"speaker_uuid"`
	Styles      []Style `json:"styles"`
}
