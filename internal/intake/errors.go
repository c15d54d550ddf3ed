package intake

import "errors"

var (
	// ErrTurnFailed wraps a generation failure. Nothing was persisted; the caller may resend.
	ErrTurnFailed = errors.New("turn failed")

	ErrEmptyMessage = errors.New("patient message is empty")
)
