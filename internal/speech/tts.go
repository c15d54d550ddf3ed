package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

const DefaultVoice = "clinical"

type Speech struct {
	Audio      []byte
	DurationMs int
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Speech, error)
}

type TTSClient struct {
	BaseURL    string
	Voice      string
	httpClient *http.Client
}

func NewTTSClient(baseURL, voice string) *TTSClient {
	if baseURL == "" {
		baseURL = "http://localhost:8003"
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &TTSClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Voice:   voice,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type ttsResponse struct {
	AudioBase64 string `json:"audio_base64"`
	DurationMs  int    `json:"duration_ms"`
}

func (c *TTSClient) Synthesize(ctx context.Context, text, voice string) (Speech, error) {
	if voice == "" {
		voice = c.Voice
	}

	jsonBody, err := json.Marshal(ttsRequest{Text: text, Voice: voice})
	if err != nil {
		return Speech{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/synthesize", bytes.NewReader(jsonBody))
	if err != nil {
		return Speech{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Speech{}, common.Unavailable("tts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		if common.IsUnavailableStatus(resp.StatusCode) {
			return Speech{}, common.Unavailable("tts", fmt.Errorf("%s - %s", resp.Status, string(body)))
		}
		return Speech{}, fmt.Errorf("%w: %s - %s", ErrSynthesisFailed, resp.Status, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if common.IsTransportError(err) {
			return Speech{}, common.Unavailable("tts", err)
		}
		return Speech{}, fmt.Errorf("%w: read response: %v", ErrSynthesisFailed, err)
	}
	var decoded ttsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Speech{}, fmt.Errorf("%w: decode response: %v", ErrSynthesisFailed, err)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioBase64)
	if err != nil {
		return Speech{}, fmt.Errorf("%w: audio is not base64: %v", ErrSynthesisFailed, err)
	}
	return Speech{Audio: audio, DurationMs: decoded.DurationMs}, nil
}
