// Package tts drives the three locally-installed TTS engine families this
// worker speaks through: COEIROINK v2, the six-engine VOICEVOX family, and
// BouyomiChan. Each gets its own Engine implementation behind one shared
// interface, the way the teacher's own internal/tts package gives every
// cloud/local provider one Provider implementation behind a shared
// interface.
package tts

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// Sentinel errors, named after the teacher's own ErrProviderUnavailable /
// ErrVoiceNotFound pair.
var (
	ErrEngineUnavailable = errors.New("tts: engine unavailable")
	ErrVoiceUnknown      = errors.New("tts: voice unknown to engine")
	ErrSynthesisFailed   = errors.New("tts: synthesis failed")
)

// ConnectTimeout and RequestTimeout bound every call an Engine makes to its
// local HTTP server.
const (
	ConnectTimeout = 5 * time.Second
	RequestTimeout = 30 * time.Second
)

// NewHTTPClient builds the single *http.Client every HTTP-based engine
// adapter shares, matching the teacher's own single-shared-client pattern
// in internal/discovery.Service.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: ConnectTimeout}
	return &http.Client{
		Timeout: RequestTimeout,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
}

// Engine synthesizes speech for one local TTS engine family and reports
// its speaker catalog.
type Engine interface {
	// Synthesize renders text in the given style to a WAV byte slice.
	// Implementations that hand audio off out-of-band (BouyomiChan) return
	// an empty slice on success; the caller treats that as "nothing to
	// play," not an error.
	Synthesize(ctx context.Context, text string, speakerUUID string, styleID int, quality voice.VoiceQuality) ([]byte, error)

	// ListSpeakers fetches the engine's current speaker/style catalog.
	ListSpeakers(ctx context.Context) ([]voice.SpeakerInfo, error)
}

// NoOpEngine synthesizes nothing; EngineSet.For returns it for an engine
// value it has no adapter for.
type NoOpEngine struct{}

func (NoOpEngine) Synthesize(context.Context, string, string, int, voice.VoiceQuality) ([]byte, error) {
	return nil, nil
}

func (NoOpEngine) ListSpeakers(context.Context) ([]voice.SpeakerInfo, error) {
	return nil, nil
}
