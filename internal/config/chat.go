package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultChatURL           = "ws://localhost:3000/ws"
	DefaultReconnectDelay    = 1 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReplyTimeout      = 60 * time.Second
)

// ChatConfig describes how the client reaches the assistant service.
type ChatConfig struct {
	URL               string
	AccessToken       string
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	// ReplyTimeout bounds the wait for a final reply. CHAT_REPLY_TIMEOUT=0
	// disables the watchdog.
	ReplyTimeout time.Duration
}

func GetChatConfig() ChatConfig {
	cfg := ChatConfig{
		URL:               GetEnvOrDefault("CHAT_WS_URL", DefaultChatURL),
		AccessToken:       GetEnvOrDefault("CHAT_ACCESS_TOKEN", ""),
		ReconnectDelay:    parseEnvDuration("CHAT_RECONNECT_DELAY", DefaultReconnectDelay),
		ReconnectAttempts: parseEnvInt("CHAT_RECONNECT_ATTEMPTS", DefaultReconnectAttempts),
		ReplyTimeout:      parseEnvDuration("CHAT_REPLY_TIMEOUT", DefaultReplyTimeout),
	}

	if cfg.ReconnectAttempts < 0 {
		log.Warn().Int("attempts", cfg.ReconnectAttempts).Msg("Negative reconnect attempts, using default")
		cfg.ReconnectAttempts = DefaultReconnectAttempts
	}

	log.Debug().
		Str("url", cfg.URL).
		Bool("token", cfg.AccessToken != "").
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Int("reconnect_attempts", cfg.ReconnectAttempts).
		Dur("reply_timeout", cfg.ReplyTimeout).
		Msg("Chat configuration loaded")

	return cfg
}
