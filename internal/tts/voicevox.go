package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// VoicevoxFamily speaks through any of the six engines that share the
// VOICEVOX wire protocol (VOICEVOX itself, COEIROINK v1, Lmroid, ShareVox,
// ItVoice, AivisSpeech). They differ only in which port they listen on;
// one adapter, parameterized by engine, covers all six.
type VoicevoxFamily struct {
	client  *http.Client
	baseURL string
}

// NewVoicevoxFamily builds an adapter bound to one VOICEVOX-family engine.
func NewVoicevoxFamily(client *http.Client, engine voice.Engine) *VoicevoxFamily {
	return &VoicevoxFamily{
		client:  client,
		baseURL: fmt.Sprintf("http://localhost:%d", engine.Port()),
	}
}

func (v *VoicevoxFamily) Synthesize(ctx context.Context, text string, speakerUUID string, styleID int, quality voice.VoiceQuality) ([]byte, error) {
	queryURL := v.baseURL + "/audio_query?" + url.Values{
		"speaker": {strconv.Itoa(styleID)},
		"text":    {text},
	}.Encode()

	queryReq, err := http.NewRequestWithContext(ctx, http.MethodPost, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tts: build audio_query request: %w", err)
	}
	queryResp, err := v.client.Do(queryReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer queryResp.Body.Close()

	if queryResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: audio_query returned status %d", ErrSynthesisFailed, queryResp.StatusCode)
	}

	var queryBody map[string]any
	if err := json.NewDecoder(queryResp.Body).Decode(&queryBody); err != nil {
		return nil, fmt.Errorf("tts: decode audio_query response: %w", err)
	}

	queryBody["speedScale"] = quality.SpeedScale
	queryBody["pitchScale"] = quality.PitchScale
	queryBody["intonationScale"] = quality.IntonationScale

	synthBody, err := json.Marshal(queryBody)
	if err != nil {
		return nil, fmt.Errorf("tts: encode synthesis request: %w", err)
	}

	synthURL := v.baseURL + "/synthesis?" + url.Values{
		"speaker": {strconv.Itoa(styleID)},
	}.Encode()

	synthReq, err := http.NewRequestWithContext(ctx, http.MethodPost, synthURL, bytes.NewReader(synthBody))
	if err != nil {
		return nil, fmt.Errorf("tts: build synthesis request: %w", err)
	}
	synthReq.Header.Set("Content-Type", "application/json")
	synthReq.Header.Set("Accept", "audio/wav")

	synthResp, err := v.client.Do(synthReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer synthResp.Body.Close()

	if synthResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: synthesis returned status %d", ErrSynthesisFailed, synthResp.StatusCode)
	}

	wav, err := io.ReadAll(synthResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading synthesis response: %v", ErrSynthesisFailed, err)
	}
	return wav, nil
}

type voicevoxStyle struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type voicevoxSpeaker struct {
	Name        string          `json:"name"`
	SpeakerUUID string          `json:"speaker_uuid"`
	Styles      []voicevoxStyle `json:"styles"`
}

func (v *VoicevoxFamily) ListSpeakers(ctx context.Context) ([]voice.SpeakerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("tts: build speakers request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: speakers returned status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var speakers []voicevoxSpeaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("tts: decode speakers response: %w", err)
	}

	result := make([]voice.SpeakerInfo, 0, len(speakers))
	for _, s := range speakers {
		styles := make([]voice.Style, 0, len(s.Styles))
		for _, st := range s.Styles {
			name, id := st.Name, st.ID
			styles = append(styles, voice.Style{StyleName: &name, StyleID: &id})
		}
		result = append(result, voice.SpeakerInfo{
			SpeakerName: s.Name,
			SpeakerUUID: s.SpeakerUUID,
			Styles:      styles,
		})
	}
	return result, nil
}
