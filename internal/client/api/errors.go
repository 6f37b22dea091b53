package api

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a non-2xx answer from the server. Reason is the failure kind
// reported by the payment phases, empty for other endpoints.
type Error struct {
	Status  int
	Reason  string
	Message string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}
