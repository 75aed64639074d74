package openai

import (
	"sync"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

type Service struct {
	mu     sync.RWMutex
	client *openai.Client
	model  string
}

// NewService returns nil when OPENAI_KEY is not set.
func NewService() *Service {
	key := config.GetOpenAIKey()
	if key == "" {
		logger.Info(logger.ASSISTANT, "OpenAI not configured - OPENAI_KEY missing, using scripted replies")
		return nil
	}
	return NewServiceWithConfig(openai.DefaultConfig(key), config.GetOpenAIModel())
}

// NewServiceWithConfig allows pointing the client at another base URL.
func NewServiceWithConfig(cfg openai.ClientConfig, model string) *Service {
	logger.Info(logger.ASSISTANT, "Initialising OpenAI service with model %s", model)
	return &Service{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *Service) GetClient() *openai.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Service) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}
