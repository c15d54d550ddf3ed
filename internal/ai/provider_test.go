package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	var got openAIChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello, I am your intake assistant."}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "m")
	reply, err := p.Chat(context.Background(),
		WithSystem("be brief", []Message{{Role: "user", Content: "hi"}}),
		Options{MaxTokens: 300, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Hello, I am your intake assistant.", reply)

	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 300, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIProvider_StatusClassification(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`overloaded`))
	}))
	defer srv.Close()
	p := NewOpenAIProvider(srv.URL+"/v1", "", "m")

	_, err := p.Chat(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)

	status = http.StatusBadRequest
	_, err = p.Chat(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrServiceUnavailable)
}

func TestOpenAIProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenAIProvider(url, "", "m").Chat(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type deadlineBody struct{}

func (deadlineBody) Read([]byte) (int, error) { return 0, context.DeadlineExceeded }
func (deadlineBody) Close() error             { return nil }

func TestProviders_BodyReadTimeoutIsUnavailable(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: deadlineBody{}, Header: http.Header{}, Request: r}, nil
	})}

	openai := NewOpenAIProvider("http://llm.invalid", "", "m")
	openai.Client = client
	_, err := openai.Chat(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)

	ollama := NewOllamaProvider("http://ollama.invalid", "llama3")
	ollama.Client = client
	_, err = ollama.Chat(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

func TestCompletionsURL(t *testing.T) {
	assert.Equal(t, "http://x/v1/chat/completions", completionsURL("http://x"))
	assert.Equal(t, "http://x/v1/chat/completions", completionsURL("http://x/v1/"))
}

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	reply, err := NewOllamaProvider(srv.URL, "llama3").Chat(context.Background(),
		[]Message{{Role: "user", Content: "hi"}}, Options{MaxTokens: 500, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.False(t, got.Stream)
	assert.Equal(t, 500, got.Options.NumPredict)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
	assert.Equal(t, 0.0, o.Temperature)

	o = Options{Temperature: -1}.withDefaults()
	assert.Equal(t, DefaultTemperature, o.Temperature)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" OpenAI ", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenAIProvider("", "", model), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider("", model), nil
	})

	p, err := reg.Get(context.Background(), "openai", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", p.(*OpenAIProvider).Model)

	_, err = reg.Get(context.Background(), "anthropic", "")
	assert.Error(t, err)
	assert.Equal(t, []string{"ollama", "openai"}, reg.Names())
}
