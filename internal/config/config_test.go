package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns default when env not set",
			key:          "TEST_KEY_1",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
		{
			name:         "returns env value when set",
			key:          "TEST_KEY_2",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := GetEnvOrDefault(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("GetEnvOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("TEST_INT", "7")
	t.Setenv("TEST_BAD_INT", "seven")
	t.Setenv("TEST_DUR", "250ms")
	t.Setenv("TEST_BAD_DUR", "soon")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_BAD_BOOL", "maybe")

	if got := parseEnvInt("TEST_INT", 1); got != 7 {
		t.Errorf("parseEnvInt() = %d, want 7", got)
	}
	if got := parseEnvInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("parseEnvInt() with invalid value = %d, want 1", got)
	}
	if got := parseEnvDuration("TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("parseEnvDuration() = %v, want 250ms", got)
	}
	if got := parseEnvDuration("TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("parseEnvDuration() with invalid value = %v, want 1s", got)
	}
	if got := parseEnvBool("TEST_BOOL", false); !got {
		t.Errorf("parseEnvBool() = %v, want true", got)
	}
	if got := parseEnvBool("TEST_BAD_BOOL", true); !got {
		t.Errorf("parseEnvBool() with invalid value = %v, want default true", got)
	}
}

func TestGetChatConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{"CHAT_WS_URL", "CHAT_ACCESS_TOKEN", "CHAT_RECONNECT_DELAY", "CHAT_RECONNECT_ATTEMPTS", "CHAT_REPLY_TIMEOUT"} {
			os.Unsetenv(key)
		}

		cfg := GetChatConfig()
		if cfg.URL != DefaultChatURL {
			t.Errorf("URL = %q, want %q", cfg.URL, DefaultChatURL)
		}
		if cfg.ReconnectDelay != DefaultReconnectDelay || cfg.ReconnectAttempts != DefaultReconnectAttempts {
			t.Errorf("reconnect policy = %v x %d, want %v x %d", cfg.ReconnectDelay, cfg.ReconnectAttempts, DefaultReconnectDelay, DefaultReconnectAttempts)
		}
		if cfg.ReplyTimeout != DefaultReplyTimeout {
			t.Errorf("ReplyTimeout = %v, want %v", cfg.ReplyTimeout, DefaultReplyTimeout)
		}
	})

	t.Run("watchdog disabled", func(t *testing.T) {
		t.Setenv("CHAT_REPLY_TIMEOUT", "0")

		if cfg := GetChatConfig(); cfg.ReplyTimeout != 0 {
			t.Errorf("ReplyTimeout = %v, want disabled", cfg.ReplyTimeout)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("CHAT_WS_URL", "wss://chat.example.com/ws")
		t.Setenv("CHAT_RECONNECT_ATTEMPTS", "-3")
		t.Setenv("CHAT_REPLY_TIMEOUT", "45s")

		cfg := GetChatConfig()
		if cfg.URL != "wss://chat.example.com/ws" {
			t.Errorf("URL = %q", cfg.URL)
		}
		if cfg.ReconnectAttempts != DefaultReconnectAttempts {
			t.Errorf("negative attempts should fall back to default, got %d", cfg.ReconnectAttempts)
		}
		if cfg.ReplyTimeout != 45*time.Second {
			t.Errorf("ReplyTimeout = %v, want 45s", cfg.ReplyTimeout)
		}
	})
}

func TestIdentitySettings(t *testing.T) {
	t.Setenv("IDENTITY_STORE_PATH", "/tmp/coursechat/id.json")
	if got := GetIdentityStorePath(); got != "/tmp/coursechat/id.json" {
		t.Errorf("GetIdentityStorePath() = %q", got)
	}

	os.Unsetenv("IDENTITY_KEY")
	if got := GetIdentityKey(); got != DefaultIdentityKey {
		t.Errorf("GetIdentityKey() = %q, want %q", got, DefaultIdentityKey)
	}
}

func TestGetRateLimitConfig(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "true")
	t.Setenv("RATELIMIT_CHAT_MESSAGE", "3")

	cfg := GetRateLimitConfig("chat_message")
	if !cfg.Enabled || cfg.MaxHits != 3 || cfg.Window != time.Minute {
		t.Errorf("unexpected chat_message config: %+v", cfg)
	}

	if GetRateLimitConfig("unknown").Enabled {
		t.Error("unknown key should be disabled")
	}
}

func TestJWTSecretManagement(t *testing.T) {
	originalSecret := GetJWTSecret()
	newSecret := []byte("test-secret")

	t.Run("set and restore JWT secret", func(t *testing.T) {
		restore := SetJWTSecret(newSecret)

		if string(GetJWTSecret()) != string(newSecret) {
			t.Errorf("JWT secret not updated, got %s, want %s",
				string(GetJWTSecret()), string(newSecret))
		}

		restore()

		if string(GetJWTSecret()) != string(originalSecret) {
			t.Errorf("JWT secret not restored, got %s, want %s",
				string(GetJWTSecret()), string(originalSecret))
		}
	})

	t.Run("concurrent access to JWT secret", func(t *testing.T) {
		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func() {
				GetJWTSecret()
				done <- true
			}()
		}

		for i := 0; i < 10; i++ {
			<-done
		}
	})
}
