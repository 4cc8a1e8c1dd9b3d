package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/ghostspeaker/internal/audio"
	"github.com/normanking/ghostspeaker/internal/config"
	"github.com/normanking/ghostspeaker/internal/discovery"
	"github.com/normanking/ghostspeaker/internal/pipeline"
	"github.com/normanking/ghostspeaker/internal/shutdown"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/syncplayback"
	"github.com/normanking/ghostspeaker/internal/voice"
)

type fakeEngines struct {
	wav []byte
	err error
}

func (f *fakeEngines) Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error) {
	return f.wav, f.err
}

func configuredStore() *state.Store {
	s := state.New()
	s.SetConnectionUp(voice.CoeiroInkV2, true, []voice.SpeakerInfo{{SpeakerUUID: "uuid-1"}})
	v := voice.CharacterVoice{Port: voice.CoeiroInkV2.Port(), SpeakerUUID: "uuid-1", StyleID: 0}
	s.SetGhostVoice("sakura", voice.GhostVoiceInfo{Voices: []*voice.CharacterVoice{&v}})
	return s
}

func newTestDispatcher(t *testing.T, st *state.Store) *Dispatcher {
	t.Helper()
	fe := &fakeEngines{wav: nil}
	player := &audio.Player{}
	pl := pipeline.New(st, fe, player, zerolog.Nop())
	sp := syncplayback.New(st, fe, player, zerolog.Nop())
	sd := shutdown.New(st, player, sp, pl, zerolog.Nop())
	disc := discovery.NewService(zerolog.Nop())
	return New(st, disc, pl, sp, sd, zerolog.Nop())
}

func TestHandleInit_AppliesConfig(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handleInit(context.Background(), Command{
		Type:   CmdInit,
		DLLDir: "/tmp",
		Config: &config.WorkerConfig{Volume: 0.5, SpeakByPunctuation: false},
	})

	assert.Equal(t, RespOk, resp.Type)
	assert.Equal(t, 0.5, st.Volume())
	assert.False(t, st.SpeakByPunctuation())
}

func TestHandleInit_MissingConfigErrors(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handleInit(context.Background(), Command{Type: CmdInit})
	assert.Equal(t, RespError, resp.Type)
}

func TestHandle_SpeakAsync_QueuesToPipeline(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdSpeakAsync, Text: "こんにちは", GhostName: "sakura"})
	assert.Equal(t, RespOk, resp.Type)
}

func TestHandle_UpdateVolume(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	vol := 0.25
	resp := d.handle(context.Background(), Command{Type: CmdUpdateVolume, Volume: &vol})
	assert.Equal(t, RespOk, resp.Type)
	assert.Equal(t, 0.25, st.Volume())
}

func TestHandle_PopDialog_EmptyQueue(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdPopDialog})
	assert.Equal(t, RespDialog, resp.Type)
	assert.Nil(t, resp.DialogMessage)
}

func TestHandle_PopDialog_ReturnsQueuedMessage(t *testing.T) {
	st := state.New()
	st.PushDialog("COEIROINKv2 が接続されました")
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdPopDialog})
	assert.Equal(t, RespDialog, resp.Type)
	require.NotNil(t, resp.DialogMessage)
	assert.Equal(t, "COEIROINKv2 が接続されました", *resp.DialogMessage)
}

func TestHandle_GetEngineStatus_ReportsConnectedEngines(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdGetEngineStatus})
	require.Equal(t, RespEngineStatus, resp.Type)
	require.NotNil(t, resp.EngineStatus)
	assert.True(t, resp.EngineStatus.ConnectionStatus[voice.CoeiroInkV2])
	assert.False(t, resp.EngineStatus.ConnectionStatus[voice.VoiceVox])
}

func TestHandle_BootEngine_MissingPathErrors(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	e := voice.CoeiroInkV2
	resp := d.handle(context.Background(), Command{Type: CmdBootEngine, Engine: &e})
	assert.Equal(t, RespError, resp.Type)
}

func TestHandle_SyncStart_FallsBackWhenSingleSegment(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdSyncStart, Text: "単一", GhostName: "sakura"})
	require.Equal(t, RespSyncStarted, resp.Type)
	assert.Nil(t, resp.FirstSegment)
	assert.False(t, resp.HasMore)
}

func TestHandle_SyncStart_MultiSegmentStartsSyncMode(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdSyncStart, Text: "一つ目。二つ目。", GhostName: "sakura"})
	require.Equal(t, RespSyncStarted, resp.Type)
	require.NotNil(t, resp.FirstSegment)
	assert.True(t, resp.HasMore)

	d.mu.Lock()
	ghost := d.syncGhostName
	d.mu.Unlock()
	assert.Equal(t, "sakura", ghost)
}

func TestHandle_SyncStart_PreservesFirstSegmentWhenPredictionNeverCompletes(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	// Shutting down makes SpawnSyncPrediction a no-op that never
	// populates the ready queue, so waitForFirstSegment falls straight
	// through its "nothing more coming" exit without waiting out the
	// full timeout. The first segment was already built before
	// prediction started, so it must still come back on the response.
	st.SetShuttingDown(true)

	resp := d.handle(context.Background(), Command{Type: CmdSyncStart, Text: "一つ目。二つ目。", GhostName: "sakura"})
	require.Equal(t, RespSyncStarted, resp.Type)
	require.NotNil(t, resp.FirstSegment)
	assert.NotEmpty(t, resp.FirstSegment.Text)
	assert.False(t, resp.HasMore)
}

func TestHandle_SyncPoll_CompleteWithNoActiveLine(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdSyncPoll})
	require.Equal(t, RespSyncStatus, resp.Type)
	require.NotNil(t, resp.State)
	assert.Equal(t, SyncStateComplete, resp.State.State)
}

func TestHandle_SyncCancel_ClearsActiveGhost(t *testing.T) {
	st := configuredStore()
	d := newTestDispatcher(t, st)

	d.handle(context.Background(), Command{Type: CmdSyncStart, Text: "一つ目。二つ目。", GhostName: "sakura"})
	resp := d.handle(context.Background(), Command{Type: CmdSyncCancel})
	assert.Equal(t, RespOk, resp.Type)

	d.mu.Lock()
	ghost := d.syncGhostName
	d.mu.Unlock()
	assert.Equal(t, "", ghost)
}

func TestHandleInit_AutoStartsConfiguredEngines(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handleInit(context.Background(), Command{
		Type: CmdInit,
		Config: &config.WorkerConfig{
			Volume:          1,
			EnginePath:      map[voice.Engine]string{voice.CoeiroInkV2: "/nonexistent/path/to/engine"},
			EngineAutoStart: map[voice.Engine]bool{voice.CoeiroInkV2: true},
		},
	})

	assert.Equal(t, RespOk, resp.Type)
	path, ok := st.EnginePath(voice.CoeiroInkV2)
	require.True(t, ok)
	assert.Equal(t, "/nonexistent/path/to/engine", path)
}

func TestHandle_Shutdown_MarksShuttingDown(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	resp := d.handle(context.Background(), Command{Type: CmdShutdown})
	assert.Equal(t, RespOk, resp.Type)
	assert.True(t, st.ShuttingDown())
}

func TestRun_RejectsNonInitFirstFrame(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	in := strings.NewReader(`{"type":"SpeakAsync","text":"hi","ghost_name":"sakura"}` + "\n")
	var out bytes.Buffer

	err := d.Run(context.Background(), in, &out)
	require.Error(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	assert.Equal(t, RespError, resp.Type)
}

func TestRun_InitThenShutdownExitsCleanly(t *testing.T) {
	st := state.New()
	d := newTestDispatcher(t, st)

	input := `{"type":"Init","dll_dir":"/tmp","config":{"volume":1,"speak_by_punctuation":true}}` + "\n" +
		`{"type":"Shutdown"}` + "\n"
	in := strings.NewReader(input)
	var out bytes.Buffer

	err := d.Run(context.Background(), in, &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	var responses []Response
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.Len(t, responses, 2)
	assert.Equal(t, RespOk, responses[0].Type)
	assert.Equal(t, RespOk, responses[1].Type)
	assert.True(t, st.ShuttingDown())
}
