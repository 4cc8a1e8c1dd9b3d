package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/ghostspeaker/internal/voice"
)

func TestVoicevoxFamily_Synthesize(t *testing.T) {
	var gotSynthesisBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio_query":
			assert.Equal(t, "1", r.URL.Query().Get("speaker"))
			_ = json.NewEncoder(w).Encode(map[string]any{"accent_phrases": []any{}, "speedScale": 1.0})
		case "/synthesis":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSynthesisBody))
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte("RIFF-fake-wav"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	v := &VoicevoxFamily{client: server.Client(), baseURL: server.URL}
	quality := voice.VoiceQuality{SpeedScale: 1.2, PitchScale: 0.1, IntonationScale: 1.5}

	wav, err := v.Synthesize(context.Background(), "こんにちは", "", 1, quality)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF-fake-wav"), wav)
	assert.InDelta(t, 1.2, gotSynthesisBody["speedScale"], 0.0001)
	assert.InDelta(t, 0.1, gotSynthesisBody["pitchScale"], 0.0001)
	assert.InDelta(t, 1.5, gotSynthesisBody["intonationScale"], 0.0001)
}

func TestVoicevoxFamily_Synthesize_QueryFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	v := &VoicevoxFamily{client: server.Client(), baseURL: server.URL}
	_, err := v.Synthesize(context.Background(), "hi", "", 1, voice.DefaultVoiceQuality())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestVoicevoxFamily_ListSpeakers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/speakers", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]voicevoxSpeaker{
			{Name: "四国めたん", SpeakerUUID: "xyz", Styles: []voicevoxStyle{{Name: "ノーマル", ID: 2}}},
		})
	}))
	defer server.Close()

	v := &VoicevoxFamily{client: server.Client(), baseURL: server.URL}
	speakers, err := v.ListSpeakers(context.Background())
	require.NoError(t, err)
	require.Len(t, speakers, 1)
	assert.Equal(t, "四国めたん", speakers[0].SpeakerName)
	assert.Equal(t, 2, *speakers[0].Styles[0].StyleID)
}

func TestNewVoicevoxFamily_BindsPort(t *testing.T) {
	v := NewVoicevoxFamily(NewHTTPClient(), voice.ShareVox)
	assert.Equal(t, "http://localhost:50025", v.baseURL)
}
