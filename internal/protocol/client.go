// Package protocol implements the chat session protocol on top of a
// transport: session start, message submission and typed dispatch of the
// streamed reply events.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/deepgram/coursechat/internal/transport"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// EventHandlers receive decoded inbound events. Nil handlers are skipped.
type EventHandlers struct {
	OnSessionStarted func(SessionStarted)
	OnPartial        func(Partial)
	OnFinal          func(Final)
	OnError          func(ErrorPayload)
	OnConnect        func()
	OnDisconnect     func()
}

type Client struct {
	transport transport.Transport
	log       zerolog.Logger
}

func NewClient(t transport.Transport) *Client {
	return &Client{
		transport: t,
		log:       logger.With(logger.PROTOCOL),
	}
}

func (c *Client) Connect(handlers EventHandlers) {
	c.transport.Connect(transport.Handlers{
		OnConnect:    handlers.OnConnect,
		OnDisconnect: handlers.OnDisconnect,
		OnEvent: func(event transport.Event) {
			c.dispatch(handlers, event)
		},
	})
}

func (c *Client) Disconnect() {
	c.transport.Disconnect()
}

func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// StartSession asks the service for a new session, or to resume SessionID.
// Concurrent starts are not deduplicated.
func (c *Client) StartSession(req StartSessionRequest) error {
	if req.UserID == "" {
		return ErrMissingUser
	}
	return c.emit(EventStart, req)
}

// SendMessage submits one user message. The reply arrives through the
// handlers passed to Connect.
func (c *Client) SendMessage(req SendMessageRequest) error {
	if req.UserID == "" {
		return ErrMissingUser
	}
	return c.emit(EventMessage, req)
}

func (c *Client) emit(event string, payload any) error {
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}

	if err := c.transport.Emit(event, payload); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return ErrNotConnected
		}
		return errors.Wrapf(err, "send %s", event)
	}
	return nil
}

func (c *Client) dispatch(handlers EventHandlers, event transport.Event) {
	switch event.Name {
	case EventStarted:
		var payload SessionStarted
		if err := decode(event, &payload); err != nil {
			c.log.Warn().Err(err).Str("event", event.Name).Msg("Dropping malformed event")
			return
		}
		c.log.Debug().Str("session_id", payload.SessionID).Msg("Session started")
		if handlers.OnSessionStarted != nil {
			handlers.OnSessionStarted(payload)
		}

	case EventPartial:
		var payload Partial
		if err := decode(event, &payload); err != nil {
			c.log.Warn().Err(err).Str("event", event.Name).Msg("Dropping malformed event")
			return
		}
		if handlers.OnPartial != nil {
			handlers.OnPartial(payload)
		}

	case EventFinal:
		payload, err := c.decodeFinal(event)
		if err != nil {
			// The cycle still has to end, so surface it as an error.
			c.log.Error().Err(err).Str("event", event.Name).Msg("Malformed final reply")
			if handlers.OnError != nil {
				handlers.OnError(ErrorPayload{Message: "malformed reply from assistant"})
			}
			return
		}
		c.log.Debug().
			Str("session_id", payload.SessionID).
			Bool("new_recommendations", payload.HasNewRecommendations).
			Int("recommendations", len(payload.Recommendations)).
			Msg("Final reply received")
		if handlers.OnFinal != nil {
			handlers.OnFinal(payload)
		}

	case EventError:
		var payload ErrorPayload
		if err := decode(event, &payload); err != nil {
			c.log.Error().Err(err).Str("event", event.Name).Msg("Malformed error event")
			payload = ErrorPayload{Message: "unknown assistant error"}
		}
		c.log.Warn().Str("message", payload.Message).Msg("Assistant reported an error")
		if handlers.OnError != nil {
			handlers.OnError(payload)
		}

	default:
		c.log.Debug().Str("event", event.Name).Msg("Ignoring unknown event")
	}
}

// decodeFinal reads a chat:final payload. Only the reply envelope can make it
// malformed; unreadable recommendation records are skipped, and a
// recommendations value that is not an array leaves the current set alone.
func (c *Client) decodeFinal(event transport.Event) (Final, error) {
	var wire struct {
		Final
		Recommendations json.RawMessage `json:"recommendations"`
	}
	if err := decode(event, &wire); err != nil {
		return Final{}, err
	}

	final := wire.Final
	raw := bytes.TrimSpace(wire.Recommendations)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return final, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		c.log.Warn().Err(err).Msg("Ignoring recommendations that are not an array")
		final.HasNewRecommendations = false
		return final, nil
	}

	final.Recommendations = make([]CourseRecommendation, 0, len(records))
	for i, record := range records {
		var rec CourseRecommendation
		if err := json.Unmarshal(record, &rec); err != nil {
			c.log.Warn().Err(err).Int("index", i).Msg("Skipping unreadable recommendation")
			continue
		}
		final.Recommendations = append(final.Recommendations, rec)
	}
	return final, nil
}

func decode(event transport.Event, v any) error {
	if len(event.Payload) == 0 {
		return errors.Errorf("%s: empty payload", event.Name)
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s", event.Name)
	}
	return nil
}
