package config

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const DefaultIdentityKey = "hazwoper_chat_user_id"

// GetIdentityKey returns the storage key under which the client identity lives
func GetIdentityKey() string {
	return GetEnvOrDefault("IDENTITY_KEY", DefaultIdentityKey)
}

// GetIdentityStorePath returns the file backing the identity store. An empty
// path means no file store is available.
func GetIdentityStorePath() string {
	if path := GetEnvOrDefault("IDENTITY_STORE_PATH", ""); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Unable to resolve home directory for identity store")
		return ""
	}
	return filepath.Join(home, ".coursechat", "identity.json")
}
