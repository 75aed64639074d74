package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Event names on the wire.
const (
	EventStart   = "chat:start"
	EventMessage = "chat:message"

	EventStarted = "chat:started"
	EventPartial = "chat:partial"
	EventFinal   = "chat:final"
	EventError   = "chat:error"
)

type StartSessionRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

type SendMessageRequest struct {
	SessionID string            `json:"sessionId,omitempty"`
	UserID    string            `json:"userId"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type SessionStarted struct {
	SessionID          string `json:"sessionId"`
	PreviousResponseID string `json:"previousResponseId,omitempty"`
}

// Partial is one streamed fragment of the assistant reply.
type Partial struct {
	Delta string `json:"delta"`
}

// CourseRecommendation is relayed verbatim from the service. The known
// fields are read as text whatever their JSON type; anything else the
// service sends, and the original value of a non-string known field, is
// kept in Extra and written back out by MarshalJSON.
type CourseRecommendation struct {
	CourseID    string `json:"courseId"`
	CourseName  string `json:"courseName"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Duration    string `json:"duration"`
	URL         string `json:"url"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *CourseRecommendation) field(key string) *string {
	switch key {
	case "courseId":
		return &r.CourseID
	case "courseName":
		return &r.CourseName
	case "description":
		return &r.Description
	case "price":
		return &r.Price
	case "duration":
		return &r.Duration
	case "url":
		return &r.URL
	}
	return nil
}

func (r *CourseRecommendation) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, "course recommendation is not an object")
	}
	if fields == nil {
		return errors.New("course recommendation is null")
	}

	*r = CourseRecommendation{}
	for key, value := range fields {
		value = bytes.TrimSpace(value)
		if target := r.field(key); target != nil {
			if len(value) > 0 && value[0] == '"' {
				if err := json.Unmarshal(value, target); err == nil {
					continue
				}
			}
			*target = scalarText(value)
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}
	return nil
}

func (r CourseRecommendation) MarshalJSON() ([]byte, error) {
	fields := map[string]any{
		"courseId":    r.CourseID,
		"courseName":  r.CourseName,
		"description": r.Description,
		"price":       r.Price,
		"duration":    r.Duration,
		"url":         r.URL,
	}
	for key, value := range r.Extra {
		fields[key] = value
	}
	return json.Marshal(fields)
}

// scalarText renders numbers and booleans as written. Objects, arrays and
// null have no text form.
func scalarText(value json.RawMessage) string {
	if len(value) == 0 {
		return ""
	}
	switch value[0] {
	case '{', '[', 'n':
		return ""
	}
	return string(value)
}

// Final closes one request/reply cycle. Reply is authoritative and may differ
// from the concatenated partials.
type Final struct {
	Reply                 string                 `json:"reply"`
	HasNewRecommendations bool                   `json:"hasNewRecommendations"`
	Recommendations       []CourseRecommendation `json:"recommendations"`
	CitedRegulations      []string               `json:"citedRegulations,omitempty"`
	PreviousResponseID    string                 `json:"previousResponseId"`
	SessionID             string                 `json:"sessionId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
