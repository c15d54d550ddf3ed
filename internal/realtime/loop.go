// Package realtime runs the audio -> transcription -> turn -> synthesis loop for one
// long-lived connection.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/common"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"github.com/suPer8Hu/voice-intake/internal/speech"
)

const (
	FrameAudio    = "audio"
	FrameEnd      = "end"
	FrameResponse = "response"
	FrameError    = "error"
)

const (
	CodeBadFrame            = "bad_frame"
	CodeTranscriptionFailed = "transcription_failed"
	CodeServiceUnavailable  = "service_unavailable"
	CodeTurnFailed          = "turn_failed"
	CodeSynthesisFailed     = "synthesis_failed"
)

// Conn is the subset of *websocket.Conn the loop needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
}

type Turner interface {
	ProcessTurn(ctx context.Context, sessionID, message string) (*intake.TurnResult, error)
}

type InFrame struct {
	Type       string `json:"type"`
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Language   string `json:"language,omitempty"`
}

type ResponseFrame struct {
	Type          string             `json:"type"`
	Transcription string             `json:"transcription"`
	ResponseText  string             `json:"response_text"`
	ResponseAudio string             `json:"response_audio"`
	DurationMs    int                `json:"duration_ms"`
	State         intake.Stage       `json:"state"`
	TriageLevel   intake.TriageLevel `json:"triage_level,omitempty"`
	ShouldEnd     bool               `json:"should_end"`
}

type ErrorFrame struct {
	Type          string        `json:"type"`
	Code          string        `json:"code"`
	Message       string        `json:"message"`
	Transcription string        `json:"transcription,omitempty"`
	ResponseText  string        `json:"response_text,omitempty"`
	State         *intake.Stage `json:"state,omitempty"`
	ShouldEnd     bool          `json:"should_end,omitempty"`
}

type Options struct {
	Voice      string
	STTTimeout time.Duration
	TTSTimeout time.Duration
}

type Loop struct {
	stt   speech.Transcriber
	turns Turner
	tts   speech.Synthesizer
	opts  Options
}

func NewLoop(stt speech.Transcriber, turns Turner, tts speech.Synthesizer, opts Options) *Loop {
	if opts.STTTimeout <= 0 {
		opts.STTTimeout = 30 * time.Second
	}
	if opts.TTSTimeout <= 0 {
		opts.TTSTimeout = 30 * time.Second
	}
	return &Loop{stt: stt, turns: turns, tts: tts, opts: opts}
}

// Run reads frames until an end frame, a read error or ctx cancellation. Frames are handled
// strictly one after another.
func (l *Loop) Run(ctx context.Context, sessionID string, conn Conn) error {
	logger := log.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("Realtime loop started")
	defer logger.Info().Msg("Realtime loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f InFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			if werr := conn.WriteJSON(ErrorFrame{Type: FrameError, Code: CodeBadFrame, Message: "frame is not a JSON object"}); werr != nil {
				return werr
			}
			continue
		}

		switch f.Type {
		case FrameEnd:
			return nil
		case FrameAudio:
			if err := l.handleAudio(ctx, sessionID, f, conn); err != nil {
				return err
			}
		default:
			logger.Debug().Str("type", f.Type).Msg("Ignoring frame")
		}
	}
}

// handleAudio returns only errors that should stop the loop, i.e. failed writes.
func (l *Loop) handleAudio(ctx context.Context, sessionID string, f InFrame, conn Conn) error {
	audio, err := base64.StdEncoding.DecodeString(f.Audio)
	if err != nil || len(audio) == 0 {
		return conn.WriteJSON(ErrorFrame{Type: FrameError, Code: CodeBadFrame, Message: "audio must be non-empty base64"})
	}

	start := time.Now()
	sttCtx, cancel := context.WithTimeout(ctx, l.opts.STTTimeout)
	tr, err := l.stt.Transcribe(sttCtx, audio, f.SampleRate, f.Language)
	cancel()
	if err != nil {
		code := CodeTranscriptionFailed
		if errors.Is(err, common.ErrServiceUnavailable) {
			code = CodeServiceUnavailable
		}
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Transcription failed")
		return conn.WriteJSON(ErrorFrame{Type: FrameError, Code: code, Message: err.Error()})
	}
	if strings.TrimSpace(tr.Text) == "" {
		return nil
	}
	sttCost := time.Since(start)

	// A disconnect must not abort a turn halfway; the result is dropped if nobody is left.
	res, err := l.turns.ProcessTurn(context.WithoutCancel(ctx), sessionID, tr.Text)
	turnCost := time.Since(start) - sttCost
	if err != nil {
		code := CodeTurnFailed
		if errors.Is(err, common.ErrServiceUnavailable) {
			code = CodeServiceUnavailable
		}
		return conn.WriteJSON(ErrorFrame{Type: FrameError, Code: code, Message: err.Error(), Transcription: tr.Text})
	}
	if ctx.Err() != nil {
		log.Info().Str("session_id", sessionID).Msg("Connection gone, turn persisted and response dropped")
		return ctx.Err()
	}

	ttsCtx, cancel := context.WithTimeout(ctx, l.opts.TTSTimeout)
	sp, err := l.tts.Synthesize(ttsCtx, res.AssistantMessage, l.opts.Voice)
	cancel()
	if err != nil {
		state := res.Stage
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Synthesis failed")
		return conn.WriteJSON(ErrorFrame{
			Type:          FrameError,
			Code:          CodeSynthesisFailed,
			Message:       err.Error(),
			Transcription: tr.Text,
			ResponseText:  res.AssistantMessage,
			State:         &state,
			ShouldEnd:     res.ShouldEnd,
		})
	}

	if total := time.Since(start); total > 3*time.Second {
		log.Info().
			Str("session_id", sessionID).
			Dur("stt", sttCost).
			Dur("turn", turnCost).
			Dur("total", total).
			Msg("Slow realtime turn")
	}

	return conn.WriteJSON(ResponseFrame{
		Type:          FrameResponse,
		Transcription: tr.Text,
		ResponseText:  res.AssistantMessage,
		ResponseAudio: base64.StdEncoding.EncodeToString(sp.Audio),
		DurationMs:    sp.DurationMs,
		State:         res.Stage,
		TriageLevel:   res.TriageLevel,
		ShouldEnd:     res.ShouldEnd,
	})
}
