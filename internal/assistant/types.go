// Package assistant is the reference chat service: it speaks the session
// protocol over a websocket and streams replies produced by a Responder.
package assistant

import (
	"context"

	"github.com/deepgram/coursechat/internal/protocol"
)

// Turn is one entry of a session's conversation history
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is everything a Responder sees for one user message
type Request struct {
	SessionID string
	UserID    string
	Message   string
	Metadata  map[string]string
	History   []Turn
}

// Reply is the authoritative result of one request
type Reply struct {
	Text                  string
	HasNewRecommendations bool
	Recommendations       []protocol.CourseRecommendation
	CitedRegulations      []string
}

// Responder produces a reply, streaming fragments through emit as they are
// generated. A non-nil error from emit aborts the reply.
type Responder interface {
	Respond(ctx context.Context, req Request, emit func(delta string) error) (Reply, error)
}

// ResponderFunc adapts a function to the Responder interface
type ResponderFunc func(ctx context.Context, req Request, emit func(delta string) error) (Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request, emit func(delta string) error) (Reply, error) {
	return f(ctx, req, emit)
}

// PublicError carries a message that is safe to relay to the chat client.
// Other responder errors are reported with a generic message.
type PublicError struct {
	Message string
}

func (e *PublicError) Error() string {
	return e.Message
}
