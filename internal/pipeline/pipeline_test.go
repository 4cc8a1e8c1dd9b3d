package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/ghostspeaker/internal/audio"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// fakeEngines records every Synthesize call and returns a fixed non-empty
// WAV payload, so tests can observe predict→play handoff without a real
// engine or audio device.
type fakeEngines struct {
	mu    sync.Mutex
	calls []string
	wav   []byte
	err   error
}

func (f *fakeEngines) Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.wav, nil
}

func (f *fakeEngines) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func configuredStore() *state.Store {
	s := state.New()
	s.SetConnectionUp(voice.CoeiroInkV2, true, []voice.SpeakerInfo{{SpeakerUUID: "uuid-1"}})
	v := voice.CharacterVoice{Port: voice.CoeiroInkV2.Port(), SpeakerUUID: "uuid-1", StyleID: 0}
	s.SetGhostVoice("sakura", voice.GhostVoiceInfo{Voices: []*voice.CharacterVoice{&v}})
	return s
}

func TestPipeline_PushText_SynthesizesAndPlays(t *testing.T) {
	st := configuredStore()
	// An empty WAV is a deliberate no-op for Player.PlayWAV (it is what
	// BouyomiChan always returns), so the play loop never touches a real
	// audio device here; this test only asserts that pushed text reaches
	// the synthesizer without a device.
	fe := &fakeEngines{wav: nil}
	player := &audio.Player{}
	p := New(st, fe, player, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer func() {
		st.SetShuttingDown(true)
		p.Wait()
	}()

	p.PushText("こんにちは。", "sakura")

	require.Eventually(t, func() bool { return fe.callCount() > 0 }, time.Second, 10*time.Millisecond)
}

func TestPipeline_PushText_NoOpAfterShutdown(t *testing.T) {
	st := configuredStore()
	st.SetShuttingDown(true)
	fe := &fakeEngines{wav: nil}
	p := New(st, fe, &audio.Player{}, zerolog.Nop())

	p.PushText("こんにちは。", "sakura")

	_, ok := p.popPredict()
	assert.False(t, ok)
}

func TestPipeline_PredictOne_SkipsEllipsisSegments(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{wav: nil}
	p := New(st, fe, &audio.Player{}, zerolog.Nop())

	p.predictOne(context.Background(), predictRequest{text: "……あ", ghostName: "sakura"})

	for _, text := range fe.calls {
		assert.NotEqual(t, "……", text, "ellipsis-only segments must not be synthesized")
	}
}

func TestPipeline_PredictOne_DropsFailedSynthesis(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{err: assertError{}}
	p := New(st, fe, &audio.Player{}, zerolog.Nop())

	p.predictOne(context.Background(), predictRequest{text: "こんにちは。", ghostName: "sakura"})

	_, ok := p.popPlay()
	assert.False(t, ok)
}

type assertError struct{}

func (assertError) Error() string { return "synthesis failed" }
