// Package segment turns a line of host script into the ordered list of
// speakable pieces the pipelines hand to a TTS engine: one call per
// sentence (or, for BouyomiChan, one call per whole dialogue span), each
// already resolved to the voice its scope is assigned.
//
// The split itself lives in internal/dialog; this package adds the part
// that is specific to knowing which engines are up and which ghost is
// talking, grounded on the teacher's internal/bridge.StreamingTTS
// splitting text into speakable chunks before handing them to a
// provider.
package segment

import (
	"fmt"

	"github.com/normanking/ghostspeaker/internal/dialog"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// Segment is one unit of speech: a speakable (or ellipsis-only) span of
// text bound to one engine/speaker/style. Ellipsis segments carry a
// pause rather than audio; callers decide what to do with them (the
// synchronous pipeline queues them without synthesizing, so the balloon
// still shows them; the asynchronous one skips them, since nothing
// downstream is waiting on the pause).
type Segment struct {
	Text        string
	RawText     string
	Scope       int
	Ellipsis    bool
	Engine      voice.Engine
	SpeakerUUID string
	StyleID     int
}

// ErrGhostNotConfigured is returned when ghostName has no voice table in
// the store.
var ErrGhostNotConfigured = fmt.Errorf("segment: ghost has no configured voices")

// ErrNoEngineConnected is returned when no TTS engine is currently
// reachable — there is nowhere to send a predict request.
var ErrNoEngineConnected = fmt.Errorf("segment: no engine currently connected")

// Build splits text into Segments for ghostName, resolving each scope to
// its assigned voice and, for non-BouyomiChan engines, further splitting
// by punctuation when punctuationSplit is requested (always applied in
// syncMode, since the balloon pacer needs per-sentence granularity
// regardless of the global setting). Segments whose resolved voice names
// a speaker the engine no longer reports are dropped.
func Build(store *state.Store, text, ghostName string, syncMode bool) ([]Segment, error) {
	if len(store.ConnectedEngines()) == 0 {
		return nil, ErrNoEngineConnected
	}

	ghost, ok := store.GhostVoice(ghostName)
	if !ok {
		return nil, ErrGhostNotConfigured
	}
	punctuationSplit := store.SpeakByPunctuation()
	initialVoice := store.InitialVoice()

	var result []Segment
	for _, d := range dialog.SplitDialog(text, ghost.DevideByLines) {
		if d.Text == "" {
			continue
		}

		v := initialVoice
		if d.Scope < len(ghost.Voices) && ghost.Voices[d.Scope] != nil {
			v = *ghost.Voices[d.Scope]
		}
		if v.SpeakerUUID == voice.NoVoiceUUID {
			continue
		}
		engine, ok := voice.FromPort(v.Port)
		if !ok {
			continue
		}
		if !store.HasSpeaker(engine, v.SpeakerUUID) {
			continue
		}

		pairs := splitForEngine(d, engine, punctuationSplit, syncMode)
		for _, p := range pairs {
			result = append(result, Segment{
				Text:        p.Text,
				RawText:     p.Raw,
				Scope:       d.Scope,
				Ellipsis:    dialog.IsEllipsisSegment(p.Text),
				Engine:      engine,
				SpeakerUUID: v.SpeakerUUID,
				StyleID:     v.StyleID,
			})
		}
	}
	return result, nil
}

// splitForEngine applies punctuation splitting unless the engine is
// BouyomiChan, which reads more naturally spoken as a whole span and can
// reorder short fragments unpredictably when fed one at a time.
func splitForEngine(d dialog.Dialog, engine voice.Engine, punctuationSplit, syncMode bool) []dialog.Pair {
	if engine == voice.BouyomiChan || !(punctuationSplit || syncMode) {
		return []dialog.Pair{{Text: d.Text, Raw: d.RawText}}
	}
	pairs := dialog.SplitByPunctuationWithRaw(d.Text, d.RawText)
	if syncMode {
		pairs = dialog.ResplitPairsByRawEllipsis(pairs)
	}
	return pairs
}
