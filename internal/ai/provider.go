package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
)

type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// WithSystem prepends a system message to the conversation window.
func WithSystem(system string, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: system})
	return append(out, messages...)
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = DefaultTemperature
	}
	return o
}
