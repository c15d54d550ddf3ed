package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrServiceUnavailable marks a collaborator that could not be reached or timed out.
// Callers retry at the transport layer; nothing retries internally.
var ErrServiceUnavailable = errors.New("service unavailable")

// Unavailable wraps err so errors.Is(err, ErrServiceUnavailable) holds.
func Unavailable(service string, err error) error {
	return fmt.Errorf("%s: %w: %v", service, ErrServiceUnavailable, err)
}

// IsTransportError reports whether err came from the network or a deadline rather than
// from a well-formed response.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUnavailableStatus treats gateway style statuses as an unreachable backend.
func IsUnavailableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
