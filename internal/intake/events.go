package intake

import (
	"context"
	"time"

	"github.com/suPer8Hu/voice-intake/internal/ai"
)

type EventKind string

const (
	EventTurn         EventKind = "turn"
	EventSessionEnded EventKind = "session_ended"
)

// Event is the audit record of one completed turn or one finalization.
type Event struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	SessionID  string         `json:"session_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Session    Session        `json:"session"`
	Patient    *Turn          `json:"patient,omitempty"`
	Assistant  *Turn          `json:"assistant,omitempty"`
	Extraction *ai.Extraction `json:"extraction,omitempty"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
