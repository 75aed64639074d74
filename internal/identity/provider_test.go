package identity

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "hazwoper_chat_user_id"

type failingStore struct {
	getErr error
	setErr error
	sets   int
}

func (fs *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fs.getErr
}

func (fs *failingStore) Set(context.Context, string, string) error {
	fs.sets++
	return fs.setErr
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("populated store returns stored value on every call", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, testKey, "user-existing"))

		p := NewProvider(store, testKey)
		assert.Equal(t, "user-existing", p.GetOrCreate(ctx))
		assert.Equal(t, "user-existing", p.GetOrCreate(ctx))
	})

	t.Run("empty store creates and persists", func(t *testing.T) {
		store := NewMemoryStore()

		first := NewProvider(store, testKey).GetOrCreate(ctx)
		assert.True(t, strings.HasPrefix(first, "user-"), "identity %q should carry user- prefix", first)

		stored, found, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, first, stored)

		// A fresh provider over the same storage simulates a reload.
		reloaded := NewProvider(store, testKey).GetOrCreate(ctx)
		assert.Equal(t, first, reloaded)
	})

	t.Run("file store survives reload", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		path := "/home/user/.coursechat/identity.json"

		first := NewProvider(NewFileStore(fs, path), testKey).GetOrCreate(ctx)
		second := NewProvider(NewFileStore(fs, path), testKey).GetOrCreate(ctx)
		assert.Equal(t, first, second)

		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Contains(t, string(data), first)
	})

	t.Run("read failure degrades to volatile identity", func(t *testing.T) {
		store := &failingStore{getErr: errors.New("storage disabled")}
		p := NewProvider(store, testKey)

		id := p.GetOrCreate(ctx)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, p.GetOrCreate(ctx), "volatile identity is stable for the provider lifetime")
		assert.Zero(t, store.sets)
	})

	t.Run("write failure degrades to volatile identity", func(t *testing.T) {
		store := &failingStore{setErr: errors.New("quota exceeded")}
		p := NewProvider(store, testKey)

		id := p.GetOrCreate(ctx)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, p.GetOrCreate(ctx))
		assert.Equal(t, 1, store.sets)
	})

	t.Run("nil store", func(t *testing.T) {
		p := NewProvider(nil, testKey)
		assert.NotEmpty(t, p.GetOrCreate(ctx))
	})

	t.Run("concurrent first callers agree", func(t *testing.T) {
		p := NewProvider(NewMemoryStore(), testKey)

		const callers = 50
		ids := make([]string, callers)
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func(i int) {
				defer wg.Done()
				ids[i] = p.GetOrCreate(ctx)
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestNewIdentityUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewIdentity()
		_, dup := seen[id]
		require.False(t, dup, "duplicate identity %s", id)
		seen[id] = struct{}{}
	}
}
