package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// coeiroinkBaseURL is fixed: COEIROINK v2 only ever runs on its own port,
// unlike the VOICEVOX family which shares a wire protocol across ports.
const coeiroinkBaseURL = "http://localhost:50032"

// CoeiroInk speaks through a locally-running COEIROINK v2 engine.
type CoeiroInk struct {
	client  *http.Client
	baseURL string
}

// NewCoeiroInk builds a CoeiroInk adapter using the shared HTTP client.
func NewCoeiroInk(client *http.Client) *CoeiroInk {
	return &CoeiroInk{client: client, baseURL: coeiroinkBaseURL}
}

// baseURLOverrideForTest points the adapter at a test server instead of
// the real COEIROINK v2 port.
func (c *CoeiroInk) baseURLOverrideForTest(url string) {
	c.baseURL = url
}

type coeiroinkPredictRequest struct {
	SpeakerUUID   string  `json:"speakerUuid"`
	StyleID       int     `json:"styleId"`
	Text          string  `json:"text"`
	ProsodyDetail any     `json:"prosodyDetail"`
	SpeedScale    float64 `json:"speedScale"`
}

func (c *CoeiroInk) Synthesize(ctx context.Context, text string, speakerUUID string, styleID int, quality voice.VoiceQuality) ([]byte, error) {
	reqBody := coeiroinkPredictRequest{
		SpeakerUUID:   speakerUUID,
		StyleID:       styleID,
		Text:          text,
		ProsodyDetail: nil,
		SpeedScale:    1.0,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("tts: encode coeiroink request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build coeiroink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: coeiroink returned status %d", ErrSynthesisFailed, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading coeiroink response: %v", ErrSynthesisFailed, err)
	}
	return wav, nil
}

type coeiroinkStyle struct {
	StyleName string `json:"styleName"`
	StyleID   int    `json:"styleId"`
}

type coeiroinkSpeaker struct {
	SpeakerName string           `json:"speakerName"`
	SpeakerUUID string           `json:"speakerUuid"`
	Styles      []coeiroinkStyle `json:"styles"`
}

func (c *CoeiroInk) ListSpeakers(ctx context.Context) ([]voice.SpeakerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("tts: build coeiroink speakers request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: coeiroink speakers returned status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var speakers []coeiroinkSpeaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("tts: decode coeiroink speakers: %w", err)
	}

	result := make([]voice.SpeakerInfo, 0, len(speakers))
	for _, s := range speakers {
		styles := make([]voice.Style, 0, len(s.Styles))
		for _, st := range s.Styles {
			name, id := st.StyleName, st.StyleID
			styles = append(styles, voice.Style{StyleName: &name, StyleID: &id})
		}
		result = append(result, voice.SpeakerInfo{
			SpeakerName: s.SpeakerName,
			SpeakerUUID: s.SpeakerUUID,
			Styles:      styles,
		})
	}
	return result, nil
}
