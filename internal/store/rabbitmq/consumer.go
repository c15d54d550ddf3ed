package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/voice-intake/internal/intake"
)

const (
	retryHeader = "x-retry-count"
	// MaxRetries bounds how often a failed event is parked on the retry queue before it
	// goes to the DLQ.
	MaxRetries = 3
)

var ErrBadMessage = errors.New("bad event message")

// DecodeEvent parses a delivery body. Malformed bodies are never retried.
func DecodeEvent(body []byte) (intake.Event, error) {
	var ev intake.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return intake.Event{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if ev.ID == "" || ev.SessionID == "" {
		return intake.Event{}, fmt.Errorf("%w: missing id or session_id", ErrBadMessage)
	}
	return ev, nil
}

// RetryCount reads how many times a delivery has already been retried.
func RetryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// RetryDelay backs off linearly: 5s, 10s, 15s...
func RetryDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * 5 * time.Second
}

// Retry parks d on the retry queue, from which it dead-letters back to the main queue once
// its per-message TTL elapses. It reports false when the retry budget is exhausted; the
// caller should then Nack without requeue so the message lands in the DLQ.
func Retry(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery) (bool, error) {
	attempt := RetryCount(d.Headers)
	if attempt >= MaxRetries {
		return false, nil
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(attempt + 1)

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := ch.PublishWithContext(cctx, "", RetryQueue(queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Headers:      headers,
		Expiration:   strconv.FormatInt(RetryDelay(attempt).Milliseconds(), 10),
		Body:         d.Body,
		Timestamp:    d.Timestamp,
	})
	if err != nil {
		return false, fmt.Errorf("publish retry: %w", err)
	}
	return true, nil
}
