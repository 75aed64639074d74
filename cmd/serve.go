package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepgram/coursechat/internal/assistant"
	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/internal/infrastructure/openai"
	"github.com/deepgram/coursechat/internal/infrastructure/redis"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		chunkDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference assistant service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			redisService := redis.NewService()
			if redisService != nil {
				defer redisService.Close()
			}

			return newAssistantServer(redisService, chunkDelay).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.GetAssistantAddr(), "listen address")
	cmd.Flags().DurationVar(&chunkDelay, "chunk-delay", config.GetAssistantChunkDelay(), "pause between streamed fragments of scripted replies")
	return cmd
}

func newAssistantServer(redisService *redis.Service, chunkDelay time.Duration) *assistant.Server {
	scripted := assistant.NewScriptedResponder(assistant.DefaultCatalog)
	scripted.ChunkDelay = chunkDelay

	var responder assistant.Responder = scripted
	if svc := openai.NewService(); svc != nil {
		responder = assistant.NewOpenAIResponder(svc, assistant.DefaultCatalog)
	}

	requireAuth := config.RequireAssistantAuth()
	logger.Info(logger.APP, "Starting assistant (auth required: %t)", requireAuth)

	return assistant.NewServer(assistant.Options{
		Sessions:    assistant.NewSessionStore(redisService),
		Responder:   responder,
		RequireAuth: requireAuth,
		ChatLimit:   config.GetRateLimitConfig("chat_message"),
		TokenLimit:  config.GetRateLimitConfig("oauth_token"),
	})
}
