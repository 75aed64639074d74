package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		envLevel string
		want     zerolog.Level
	}{
		{"Debug level", "DEBUG", zerolog.DebugLevel},
		{"Info level", "INFO", zerolog.InfoLevel},
		{"Warn level", "WARN", zerolog.WarnLevel},
		{"Error level", "ERROR", zerolog.ErrorLevel},
		{"Empty defaults to Info", "", zerolog.InfoLevel},
		{"Invalid defaults to Info", "INVALID", zerolog.InfoLevel},
		{"Case insensitive", "debug", zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("LOG_LEVEL", tt.envLevel)
			defer os.Unsetenv("LOG_LEVEL")

			if got := getLogLevel(); got != tt.want {
				t.Errorf("getLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func captureOutput(level zerolog.Level, f func()) string {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	}()

	var buf bytes.Buffer
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(&buf)

	f()

	return buf.String()
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		setLevel  string
		logFunc   func(string, string, ...interface{})
		namespace string
		message   string
		shouldLog bool
		contains  string
	}{
		{
			name:      "Debug logs when Debug",
			setLevel:  "DEBUG",
			logFunc:   Debug,
			namespace: "TEST",
			message:   "debug message",
			shouldLog: true,
			contains:  `"level":"debug"`,
		},
		{
			name:      "Debug doesn't log when Info",
			setLevel:  "INFO",
			logFunc:   Debug,
			namespace: "TEST",
			message:   "debug message",
			shouldLog: false,
		},
		{
			name:      "Info logs when Info",
			setLevel:  "INFO",
			logFunc:   Info,
			namespace: "TEST",
			message:   "info message",
			shouldLog: true,
			contains:  `"level":"info"`,
		},
		{
			name:      "Warn doesn't log when Error",
			setLevel:  "ERROR",
			logFunc:   Warn,
			namespace: "TEST",
			message:   "warn message",
			shouldLog: false,
		},
		{
			name:      "Error logs when Debug",
			setLevel:  "DEBUG",
			logFunc:   Error,
			namespace: "TEST",
			message:   "error message",
			shouldLog: true,
			contains:  `"level":"error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("LOG_LEVEL", tt.setLevel)
			defer os.Unsetenv("LOG_LEVEL")

			output := strings.TrimSpace(captureOutput(getLogLevel(), func() {
				tt.logFunc(tt.namespace, tt.message)
			}))

			hasOutput := output != ""
			if hasOutput != tt.shouldLog {
				t.Errorf("Expected log output: %v, got output: %q", tt.shouldLog, output)
			}
			if !tt.shouldLog {
				return
			}

			for _, want := range []string{tt.contains, `"namespace":"TEST"`, tt.message} {
				if !strings.Contains(output, want) {
					t.Errorf("Expected output to contain %q, got %q", want, output)
				}
			}
		})
	}
}

func TestWith(t *testing.T) {
	output := captureOutput(zerolog.DebugLevel, func() {
		l := With(CHAT)
		l.Info().Str("session_id", "S1").Msg("session adopted")
	})

	if !strings.Contains(output, `"namespace":"CHAT"`) {
		t.Errorf("With() output = %q, want namespace field", output)
	}
	if !strings.Contains(output, `"session_id":"S1"`) {
		t.Errorf("With() output = %q, want session_id field", output)
	}
}
