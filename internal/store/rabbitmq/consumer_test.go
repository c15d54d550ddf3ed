package rabbitmq

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/intake"
)

func TestDecodeEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sess := intake.NewSession("s-1", now)
	sess.Stage = intake.StageRedFlagCheck
	body, err := json.Marshal(intake.Event{
		ID:         "01HZZZZZZZZZZZZZZZZZZZZZZ1",
		Kind:       intake.EventTurn,
		SessionID:  "s-1",
		OccurredAt: now,
		Session:    *sess,
	})
	require.NoError(t, err)

	ev, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, intake.EventTurn, ev.Kind)
	assert.Equal(t, intake.StageRedFlagCheck, ev.Session.Stage)
}

func TestDecodeEvent_Bad(t *testing.T) {
	_, err := DecodeEvent([]byte("{"))
	assert.ErrorIs(t, err, ErrBadMessage)

	_, err = DecodeEvent([]byte(`{"kind":"turn"}`))
	assert.ErrorIs(t, err, ErrBadMessage)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 2, RetryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, RetryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 0, RetryCount(amqp.Table{retryHeader: "x"}))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryDelay(0))
	assert.Equal(t, 15*time.Second, RetryDelay(2))
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "intake_events.retry", RetryQueue("intake_events"))
	assert.Equal(t, "intake_events.dlq", DeadLetterQueue("intake_events"))
}
