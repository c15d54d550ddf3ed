// Package speech holds the transcription and synthesis collaborator clients.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSynthesisFailed     = errors.New("synthesis failed")
)

const DefaultSampleRate = 16000

type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int, language string) (Transcription, error)
}

type WhisperClient struct {
	BaseURL    string
	httpClient *http.Client
	// Score converts a raw average log-probability into a confidence when the backend
	// does not report one itself.
	Score ScoreFunc
}

func NewWhisperClient(baseURL string) *WhisperClient {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &WhisperClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Score: ScoreConfidence,
	}
}

type sttRequest struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Language    string `json:"language,omitempty"`
}

type sttResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	AvgLogprob *float64 `json:"avg_logprob"`
	Language   string   `json:"language"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, sampleRate int, language string) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, fmt.Errorf("%w: empty audio", ErrTranscriptionFailed)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	body, err := json.Marshal(sttRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		SampleRate:  sampleRate,
		Language:    language,
	})
	if err != nil {
		return Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcription{}, common.Unavailable("stt", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		if resp.StatusCode >= 500 {
			return Transcription{}, common.Unavailable("stt", fmt.Errorf("%s - %s", resp.Status, string(respBody)))
		}
		return Transcription{}, fmt.Errorf("%w: %s - %s", ErrTranscriptionFailed, resp.Status, string(respBody))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if common.IsTransportError(err) {
			return Transcription{}, common.Unavailable("stt", err)
		}
		return Transcription{}, fmt.Errorf("%w: read response: %v", ErrTranscriptionFailed, err)
	}
	var result sttResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return Transcription{}, fmt.Errorf("%w: decode response: %v", ErrTranscriptionFailed, err)
	}

	out := Transcription{Text: strings.TrimSpace(result.Text), Language: result.Language}
	switch {
	case result.Confidence != nil:
		out.Confidence = clamp01(*result.Confidence)
	case result.AvgLogprob != nil && c.Score != nil:
		out.Confidence = c.Score(*result.AvgLogprob)
	}
	if out.Language == "" {
		out.Language = "en"
	}
	return out, nil
}
