package conversation

import (
	"github.com/deepgram/coursechat/internal/protocol"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type SessionStatus string

const (
	SessionAbsent  SessionStatus = "absent"
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
)

type Session struct {
	ID                 string        `json:"sessionId,omitempty"`
	PreviousResponseID string        `json:"previousResponseId,omitempty"`
	Status             SessionStatus `json:"status"`
}

// State is an immutable snapshot of the conversation. Slices are copies.
type State struct {
	Messages         []Message                       `json:"messages"`
	Streaming        string                          `json:"streaming"`
	Busy             bool                            `json:"busy"`
	Connected        bool                            `json:"connected"`
	Session          Session                         `json:"session"`
	Recommendations  []protocol.CourseRecommendation `json:"recommendations"`
	CitedRegulations []string                        `json:"citedRegulations,omitempty"`
}

func (s State) clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Recommendations = append([]protocol.CourseRecommendation(nil), s.Recommendations...)
	out.CitedRegulations = append([]string(nil), s.CitedRegulations...)
	return out
}

func emptyState(connected bool) State {
	return State{
		Connected: connected,
		Session:   Session{Status: SessionAbsent},
	}
}
