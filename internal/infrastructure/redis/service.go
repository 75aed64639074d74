package redis

import (
	"context"
	"time"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("redis: key not found")

type Service struct {
	client *redis.Client
}

// NewService connects to the configured Redis server. It returns nil when
// Redis is not configured or not reachable so callers can fall back to memory.
func NewService() *Service {
	url := config.GetRedisURL()
	if url == "" {
		return nil
	}

	return NewServiceWithOptions(&redis.Options{
		Addr:     url,
		Password: config.GetRedisPassword(),
		DB:       0,
	})
}

func NewServiceWithOptions(opts *redis.Options) *Service {
	l := logger.With(logger.REDIS)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		l.Error().
			Err(err).
			Str("addr", opts.Addr).
			Msg("Failed to establish Redis connection")
		_ = client.Close()
		return nil
	}

	return &Service{
		client: client,
	}
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		l := logger.With(logger.REDIS)
		l.Error().
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Redis SET operation failed")
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Get retrieves a value from Redis
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		l := logger.With(logger.REDIS)
		l.Error().
			Err(err).
			Str("key", key).
			Msg("Redis GET operation failed")
		return "", errors.Wrapf(err, "redis get %s", key)
	}
	return val, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
