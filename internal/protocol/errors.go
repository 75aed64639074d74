package protocol

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned synchronously when an operation needs a live
	// connection and there is none.
	ErrNotConnected = errors.New("chat socket is not connected")
	ErrMissingUser  = errors.New("chat request is missing a user id")
)

// ServerError is a failure reported by the assistant for the in-flight cycle.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "assistant error"
	}
	return "assistant error: " + e.Message
}
