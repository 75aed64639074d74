package assistant

import (
	"context"
	"fmt"
	"testing"

	"github.com/deepgram/coursechat/internal/infrastructure/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session := &Session{ID: "S1", UserID: "user-1"}
	session.Append(Turn{Role: RoleUser, Content: "hi"})
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.UserID)
	require.Len(t, loaded.History, 1)

	// Stored copies are isolated from callers.
	loaded.History[0].Content = "changed"
	session.History[0].Content = "changed too"
	again, err := store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.History[0].Content)

	require.NoError(t, store.Delete(ctx, "S1"))
	_, err = store.Get(ctx, "S1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionAppendTrimsHistory(t *testing.T) {
	session := &Session{ID: "S1"}
	for i := 0; i < maxHistory+5; i++ {
		session.Append(Turn{Role: RoleUser, Content: fmt.Sprint(i)})
	}

	require.Len(t, session.History, maxHistory)
	assert.Equal(t, "5", session.History[0].Content)
	assert.Equal(t, fmt.Sprint(maxHistory+4), session.History[maxHistory-1].Content)
	assert.False(t, session.UpdatedAt.IsZero())
}

func TestNewSessionStoreFallsBackToMemory(t *testing.T) {
	_, ok := NewSessionStore(nil).(*MemorySessionStore)
	assert.True(t, ok)
}

func TestRedisSessionStore(t *testing.T) {
	service := redis.NewService()
	if service == nil {
		t.Skip("REDIS_URL not set or unreachable")
	}
	defer service.Close()

	ctx := context.Background()
	store := NewSessionStore(service)
	require.IsType(t, &RedisSessionStore{}, store)

	session := &Session{ID: "test-" + t.Name(), UserID: "user-1"}
	session.Append(Turn{Role: RoleUser, Content: "hi"}, Turn{Role: RoleAssistant, Content: "hello"})
	require.NoError(t, store.Save(ctx, session))
	defer store.Delete(ctx, session.ID)

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.History, loaded.History)

	_, err = store.Get(ctx, "missing-"+t.Name())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
