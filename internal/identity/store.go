package identity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/deepgram/coursechat/internal/infrastructure/redis"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Store is a small persistent key-value store scoped to one client device.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (ms *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	value, ok := ms.values[key]
	return value, ok, nil
}

func (ms *MemoryStore) Set(_ context.Context, key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.values[key] = value
	return nil
}

// FileStore keeps all keys in a single JSON document.
type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

func (fs *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (fs *FileStore) Set(_ context.Context, key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode identity store")
	}

	if err := fs.fs.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrapf(err, "create directory for %s", fs.path)
	}

	tmp := fs.path + ".tmp"
	if err := afero.WriteFile(fs.fs, tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := fs.fs.Rename(tmp, fs.path); err != nil {
		return errors.Wrapf(err, "replace %s", fs.path)
	}
	return nil
}

func (fs *FileStore) load() (map[string]string, error) {
	data, err := afero.ReadFile(fs.fs, fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", fs.path)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrapf(err, "decode %s", fs.path)
	}
	return values, nil
}

// RedisStore keeps identities under the "identity:" key prefix.
type RedisStore struct {
	redisService *redis.Service
}

func NewRedisStore(redisService *redis.Service) *RedisStore {
	return &RedisStore{redisService: redisService}
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := rs.redisService.Get(ctx, "identity:"+key)
	if errors.Is(err, redis.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (rs *RedisStore) Set(ctx context.Context, key, value string) error {
	return rs.redisService.Set(ctx, "identity:"+key, value, 0)
}

// NewStore picks the identity backend: Redis when a service is available,
// else a file store when a path is configured, else process memory.
func NewStore(redisService *redis.Service, fs afero.Fs, path string) Store {
	l := logger.With(logger.IDENTITY)

	if redisService != nil {
		l.Info().Msg("Using Redis for identity storage")
		return NewRedisStore(redisService)
	}

	if path != "" && fs != nil {
		l.Info().Str("path", path).Msg("Using file identity storage")
		return NewFileStore(fs, path)
	}

	l.Warn().Msg("Using in-memory identity storage, identity will not survive restarts")
	return NewMemoryStore()
}
