package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/common"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"github.com/suPer8Hu/voice-intake/internal/speech"
)

type fakeConn struct {
	in      [][]byte
	written []map[string]any
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if len(c.in) == 0 {
		return 0, nil, io.EOF
	}
	msg := c.in[0]
	c.in = c.in[1:]
	return 1, msg, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	c.written = append(c.written, m)
	return nil
}

type fakeSTT struct {
	text string
	err  error
}

func (f fakeSTT) Transcribe(context.Context, []byte, int, string) (speech.Transcription, error) {
	return speech.Transcription{Text: f.text, Confidence: 0.9, Language: "en"}, f.err
}

type fakeTTS struct {
	err error
}

func (f fakeTTS) Synthesize(context.Context, string, string) (speech.Speech, error) {
	if f.err != nil {
		return speech.Speech{}, f.err
	}
	return speech.Speech{Audio: []byte("wav"), DurationMs: 1200}, nil
}

type fakeTurner struct {
	calls    []string
	ctxAlive bool
	err      error
}

func (f *fakeTurner) ProcessTurn(ctx context.Context, _ string, message string) (*intake.TurnResult, error) {
	f.calls = append(f.calls, message)
	f.ctxAlive = ctx.Err() == nil
	if f.err != nil {
		return nil, f.err
	}
	return &intake.TurnResult{
		AssistantMessage: "Do I have your consent?",
		Stage:            intake.StageConsent,
		ShouldEnd:        false,
	}, nil
}

func audioFrame(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(InFrame{Type: FrameAudio, Audio: base64.StdEncoding.EncodeToString([]byte("pcm")), SampleRate: 16000})
	require.NoError(t, err)
	return b
}

func TestRun_AudioFrameProducesResponse(t *testing.T) {
	conn := &fakeConn{in: [][]byte{audioFrame(t), []byte(`{"type":"end"}`)}}
	turner := &fakeTurner{}
	loop := NewLoop(fakeSTT{text: "hello"}, turner, fakeTTS{}, Options{})

	require.NoError(t, loop.Run(context.Background(), "s1", conn))

	require.Len(t, conn.written, 1)
	out := conn.written[0]
	assert.Equal(t, FrameResponse, out["type"])
	assert.Equal(t, "hello", out["transcription"])
	assert.Equal(t, "Do I have your consent?", out["response_text"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("wav")), out["response_audio"])
	assert.Equal(t, "consent", out["state"])
	assert.Equal(t, false, out["should_end"])
	assert.Equal(t, []string{"hello"}, turner.calls)
}

func TestRun_EmptyTranscriptionSkipsTurn(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		conn := &fakeConn{in: [][]byte{audioFrame(t)}}
		turner := &fakeTurner{}
		loop := NewLoop(fakeSTT{text: text}, turner, fakeTTS{}, Options{})

		err := loop.Run(context.Background(), "s1", conn)
		assert.ErrorIs(t, err, io.EOF)
		assert.Empty(t, turner.calls, "text %q", text)
		assert.Empty(t, conn.written, "text %q", text)
	}
}

func TestRun_BadFrameKeepsLoopAlive(t *testing.T) {
	conn := &fakeConn{in: [][]byte{[]byte("not json"), []byte(`{"type":"audio","audio":"%%%"}`), audioFrame(t), []byte(`{"type":"end"}`)}}
	loop := NewLoop(fakeSTT{text: "hi"}, &fakeTurner{}, fakeTTS{}, Options{})

	require.NoError(t, loop.Run(context.Background(), "s1", conn))
	require.Len(t, conn.written, 3)
	assert.Equal(t, CodeBadFrame, conn.written[0]["code"])
	assert.Equal(t, CodeBadFrame, conn.written[1]["code"])
	assert.Equal(t, FrameResponse, conn.written[2]["type"])
}

func TestRun_ErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		stt    fakeSTT
		turner *fakeTurner
		tts    fakeTTS
		code   string
	}{
		{"stt failed", fakeSTT{err: speech.ErrTranscriptionFailed}, &fakeTurner{}, fakeTTS{}, CodeTranscriptionFailed},
		{"stt down", fakeSTT{err: common.Unavailable("stt", errors.New("refused"))}, &fakeTurner{}, fakeTTS{}, CodeServiceUnavailable},
		{"turn failed", fakeSTT{text: "hi"}, &fakeTurner{err: intake.ErrTurnFailed}, fakeTTS{}, CodeTurnFailed},
		{"llm down", fakeSTT{text: "hi"}, &fakeTurner{err: common.Unavailable("llm", errors.New("503"))}, fakeTTS{}, CodeServiceUnavailable},
		{"tts failed", fakeSTT{text: "hi"}, &fakeTurner{}, fakeTTS{err: speech.ErrSynthesisFailed}, CodeSynthesisFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{in: [][]byte{audioFrame(t), []byte(`{"type":"end"}`)}}
			loop := NewLoop(tc.stt, tc.turner, tc.tts, Options{})

			require.NoError(t, loop.Run(context.Background(), "s1", conn))
			require.Len(t, conn.written, 1)
			assert.Equal(t, FrameError, conn.written[0]["type"])
			assert.Equal(t, tc.code, conn.written[0]["code"])
		})
	}
}

func TestRun_SynthesisFailureStillCarriesTurnText(t *testing.T) {
	conn := &fakeConn{in: [][]byte{audioFrame(t), []byte(`{"type":"end"}`)}}
	loop := NewLoop(fakeSTT{text: "hi"}, &fakeTurner{}, fakeTTS{err: speech.ErrSynthesisFailed}, Options{})

	require.NoError(t, loop.Run(context.Background(), "s1", conn))
	out := conn.written[0]
	assert.Equal(t, "hi", out["transcription"])
	assert.Equal(t, "Do I have your consent?", out["response_text"])
	assert.Equal(t, "consent", out["state"])
}

func TestRun_CancelledConnectionStillRunsTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &fakeConn{in: [][]byte{audioFrame(t)}}
	turner := &fakeTurner{}
	stt := cancelingSTT{cancel: cancel}
	loop := NewLoop(stt, turner, fakeTTS{}, Options{})

	err := loop.Run(ctx, "s1", conn)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"hi"}, turner.calls)
	assert.True(t, turner.ctxAlive)
	assert.Empty(t, conn.written)
}

// cancelingSTT simulates the client dropping while its audio is being transcribed.
type cancelingSTT struct {
	cancel context.CancelFunc
}

func (c cancelingSTT) Transcribe(context.Context, []byte, int, string) (speech.Transcription, error) {
	c.cancel()
	return speech.Transcription{Text: "hi"}, nil
}
