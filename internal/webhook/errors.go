package webhook

import (
	"errors"
	"fmt"
)

// ErrTransport marks every failure to complete a webhook round trip: network
// errors, non-2xx statuses and unparseable history bodies.
var ErrTransport = errors.New("webhook transport failure")

// ErrNotConfigured is returned when the endpoint URL for a call is empty.
var ErrNotConfigured = errors.New("webhook endpoint not configured")

// ErrHistoryTooLarge is returned when the history body exceeds the client's
// size cap.
var ErrHistoryTooLarge = errors.New("history body too large")

// StatusError reports a non-2xx answer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s: http %d", e.Endpoint, e.StatusCode)
}

// Is makes errors.Is(err, ErrTransport) hold for status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

func transportErr(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
}
