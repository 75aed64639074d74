package config

import "time"

// GetAssistantAddr returns the listen address of the reference assistant service
func GetAssistantAddr() string {
	return GetEnvOrDefault("ASSISTANT_ADDR", ":3000")
}

// RequireAssistantAuth reports whether /ws demands a bearer token
func RequireAssistantAuth() bool {
	return parseEnvBool("ASSISTANT_REQUIRE_AUTH", false)
}

// GetAssistantChunkDelay returns the pause between scripted reply fragments
func GetAssistantChunkDelay() time.Duration {
	return parseEnvDuration("ASSISTANT_CHUNK_DELAY", 0)
}
