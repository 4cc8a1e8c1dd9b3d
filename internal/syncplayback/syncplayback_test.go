package syncplayback

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

type fakeEngines struct {
	mu  sync.Mutex
	wav []byte
	err error
}

func (f *fakeEngines) Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wav, f.err
}

func configuredStore() *state.Store {
	s := state.New()
	s.SetConnectionUp(voice.CoeiroInkV2, true, []voice.SpeakerInfo{{SpeakerUUID: "uuid-1"}})
	v := voice.CharacterVoice{Port: voice.CoeiroInkV2.Port(), SpeakerUUID: "uuid-1", StyleID: 0}
	s.SetGhostVoice("sakura", voice.GhostVoiceInfo{Voices: []*voice.CharacterVoice{&v}})
	return s
}

func TestSpawnSyncPrediction_FillsReadyQueueInOrder(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{wav: []byte("clip")}
	c := New(st, fe, &audio.Player{}, zerolog.Nop())

	err := c.SpawnSyncPrediction(context.Background(), "一つ目。二つ目。", "sakura")
	require.NoError(t, err)

	var texts []string
	require.Eventually(t, func() bool {
		seg, hasMore := c.PopReadySegment("sakura")
		if seg != nil {
			texts = append(texts, seg.Text)
		}
		return !hasMore
	}, time.Second, 5*time.Millisecond, "prediction never reached allPredicted")
	assert.Equal(t, []string{"一つ目。", "二つ目。"}, texts)
}

func TestPopReadySegment_WrongGhostReturnsNothing(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{wav: []byte("clip")}
	c := New(st, fe, &audio.Player{}, zerolog.Nop())

	require.NoError(t, c.SpawnSyncPrediction(context.Background(), "一つ目。", "sakura"))

	seg, hasMore := c.PopReadySegment("someone-else")
	assert.Nil(t, seg)
	assert.False(t, hasMore)
}

func TestCancelSyncPlayback_ClearsState(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{wav: []byte("clip")}
	c := New(st, fe, &audio.Player{}, zerolog.Nop())

	require.NoError(t, c.SpawnSyncPrediction(context.Background(), "一つ目。", "sakura"))
	c.CancelSyncPlayback()

	seg, hasMore := c.PopReadySegment("sakura")
	assert.Nil(t, seg)
	assert.False(t, hasMore)
}

func TestSpawnSyncPrediction_ReplacesInFlightLine(t *testing.T) {
	st := configuredStore()
	fe := &fakeEngines{wav: []byte("clip")}
	c := New(st, fe, &audio.Player{}, zerolog.Nop())

	require.NoError(t, c.SpawnSyncPrediction(context.Background(), "古い行。", "sakura"))
	require.NoError(t, c.SpawnSyncPrediction(context.Background(), "新しい行。", "sakura"))

	var texts []string
	require.Eventually(t, func() bool {
		seg, hasMore := c.PopReadySegment("sakura")
		if seg != nil {
			texts = append(texts, seg.Text)
		}
		return !hasMore
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"新しい行。"}, texts)
}

func TestIsSyncAudioDone_TracksGenerationOutOfOrder(t *testing.T) {
	st := configuredStore()
	c := New(st, &fakeEngines{}, &audio.Player{}, zerolog.Nop())

	assert.True(t, c.IsSyncAudioDone(), "no playback spawned yet, nothing to wait on")

	c.SpawnSyncPlayback(context.Background(), nil)
	c.SpawnSyncPlayback(context.Background(), nil)
	c.Wait()

	assert.True(t, c.IsSyncAudioDone())
}

func TestSpawnSyncPrediction_SkipsWhenShuttingDown(t *testing.T) {
	st := configuredStore()
	st.SetShuttingDown(true)
	c := New(st, &fakeEngines{}, &audio.Player{}, zerolog.Nop())

	err := c.SpawnSyncPrediction(context.Background(), "一つ目。", "sakura")
	require.NoError(t, err)

	_, hasMore := c.PopReadySegment("sakura")
	assert.False(t, hasMore)
}
