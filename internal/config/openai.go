package config

import (
	"github.com/sashabaranov/go-openai"
)

// GetOpenAIKey returns the OpenAI key, empty when the scripted responder should be used
func GetOpenAIKey() string {
	return GetEnvOrDefault("OPENAI_KEY", "")
}

func GetOpenAIModel() string {
	return GetEnvOrDefault("OPENAI_MODEL", openai.GPT4oMini)
}
