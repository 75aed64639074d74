package assistant

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/deepgram/coursechat/internal/infrastructure/redis"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
)

const (
	sessionLifetime = 24 * time.Hour
	sessionPrefix   = "chat:session:"
	// maxHistory bounds the turns kept per session for responder context.
	maxHistory = 20
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server side record of one conversation
type Session struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	History            []Turn    `json:"history,omitempty"`
	PreviousResponseID string    `json:"previousResponseId,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Append records one exchange, trimming the oldest turns past maxHistory.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
	if over := len(s.History) - maxHistory; over > 0 {
		s.History = append([]Turn(nil), s.History[over:]...)
	}
	s.UpdatedAt = time.Now()
}

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// NewSessionStore uses Redis when the service is reachable and memory otherwise.
func NewSessionStore(redisService *redis.Service) SessionStore {
	l := logger.With(logger.ASSISTANT)

	if redisService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := redisService.Ping(ctx)
		if err == nil {
			l.Info().Msg("Using Redis session store")
			return &RedisSessionStore{redisService: redisService}
		}
		l.Warn().Err(err).Msg("Redis unreachable, falling back to in-memory sessions")
	}

	l.Info().Msg("Using in-memory session store")
	return NewMemorySessionStore()
}

type RedisSessionStore struct {
	redisService *redis.Service
}

func (rs *RedisSessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := rs.redisService.Get(ctx, sessionPrefix+sessionID)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, errors.Wrapf(err, "decode session %s", sessionID)
	}
	return &session, nil
}

func (rs *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(err, "encode session %s", session.ID)
	}
	return rs.redisService.Set(ctx, sessionPrefix+session.ID, string(data), sessionLifetime)
}

func (rs *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return rs.redisService.Delete(ctx, sessionPrefix+sessionID)
}

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (ms *MemorySessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	session, ok := ms.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.History = append([]Turn(nil), session.History...)
	return &session, nil
}

func (ms *MemorySessionStore) Save(ctx context.Context, session *Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := *session
	stored.History = append([]Turn(nil), session.History...)
	ms.sessions[session.ID] = stored
	return nil
}

func (ms *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}
