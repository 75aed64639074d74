// Package identity resolves the stable client identifier that ties chat
// sessions to one device profile.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Provider hands out one identity per store key. The first resolution is
// cached for the provider's lifetime and never torn down.
type Provider struct {
	mu       sync.Mutex
	store    Store
	key      string
	identity string
	newID    func() string
	log      zerolog.Logger
}

func NewProvider(store Store, key string) *Provider {
	return &Provider{
		store: store,
		key:   key,
		newID: NewIdentity,
		log:   logger.With(logger.IDENTITY),
	}
}

// NewIdentity returns "user-" followed by a lowercase ULID: a millisecond
// timestamp plus 80 bits of randomness, monotonic within the process.
func NewIdentity() string {
	return "user-" + strings.ToLower(ulid.Make().String())
}

// GetOrCreate returns the persisted identity, creating and persisting one on
// first use. Storage failures degrade to an identity that lives only as long
// as this provider.
func (p *Provider) GetOrCreate(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identity != "" {
		return p.identity
	}

	if p.store == nil {
		p.identity = p.newID()
		p.log.Warn().Str("user_id", p.identity).Msg("No identity store, using volatile identity")
		return p.identity
	}

	stored, found, err := p.store.Get(ctx, p.key)
	if err != nil {
		p.identity = p.newID()
		p.log.Warn().Err(err).Str("user_id", p.identity).Msg("Identity store unavailable, using volatile identity")
		return p.identity
	}
	if found && stored != "" {
		p.identity = stored
		p.log.Debug().Str("user_id", stored).Msg("Loaded stored identity")
		return p.identity
	}

	p.identity = p.newID()
	if err := p.store.Set(ctx, p.key, p.identity); err != nil {
		p.log.Warn().Err(err).Str("user_id", p.identity).Msg("Failed to persist identity, using volatile identity")
		return p.identity
	}

	p.log.Info().Str("user_id", p.identity).Msg("Created new identity")
	return p.identity
}
