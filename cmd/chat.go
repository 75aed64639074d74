package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/internal/conversation"
	"github.com/deepgram/coursechat/internal/identity"
	"github.com/deepgram/coursechat/internal/infrastructure/redis"
	"github.com/deepgram/coursechat/internal/protocol"
	"github.com/deepgram/coursechat/internal/transport"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const pollPeriod = 20 * time.Millisecond

var (
	// connectWait bounds how long input is held back while the first connection is made.
	connectWait = 10 * time.Second
	// pendingWait bounds the wait for a reply when the watchdog is disabled.
	pendingWait = 2 * time.Minute
)

func newChatCmd() *cobra.Command {
	var url, token string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the course advisor from the terminal",
		Long: "Reads one message per line. /reset starts a new conversation, /quit exits.\n" +
			"Replies stream as they are generated; recommended courses are listed after each reply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.GetChatConfig()
			if cmd.Flags().Changed("url") {
				cfg.URL = url
			}
			if cmd.Flags().Changed("token") {
				cfg.AccessToken = token
			}

			return runChat(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&url, "url", config.DefaultChatURL, "assistant websocket URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the assistant")
	return cmd
}

func runChat(ctx context.Context, cfg config.ChatConfig, in io.Reader, out io.Writer) error {
	out = &syncWriter{w: out}

	redisService := redis.NewService()
	if redisService != nil {
		defer redisService.Close()
	}
	store := identity.NewStore(redisService, afero.NewOsFs(), config.GetIdentityStorePath())
	userID := identity.NewProvider(store, config.GetIdentityKey()).GetOrCreate(ctx)

	client := transport.NewClient(transport.Options{
		URL:               cfg.URL,
		Token:             cfg.AccessToken,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectAttempts: cfg.ReconnectAttempts,
	})

	ctrl := conversation.New(protocol.NewClient(client), userID, conversation.Options{
		ReplyTimeout: cfg.ReplyTimeout,
		OnError: func(err error) {
			fmt.Fprintf(out, "\n! %v\n", err)
		},
	})
	view := &terminalView{out: out}
	unsubscribe := ctrl.Subscribe(view.render)
	defer unsubscribe()

	ctrl.Start()
	defer ctrl.Close()

	fmt.Fprintf(out, "Connecting to %s as %s\n", cfg.URL, userID)
	if !waitFor(ctx, ctrl, connectWait, func(s conversation.State) bool { return s.Connected }) {
		fmt.Fprintln(out, "! still not connected, messages will fail until the assistant is reachable")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			waitFor(ctx, ctrl, replyWait(cfg), func(s conversation.State) bool { return !s.Busy })
			return nil
		}

		// Piped input must not race the previous reply.
		idle := waitFor(ctx, ctrl, replyWait(cfg), func(s conversation.State) bool { return !s.Busy })

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			logger.Debug(logger.CHAT, "Reset requested (reply pending: %t)", !idle)
			ctrl.Reset()
			fmt.Fprintln(out, "-- new conversation --")
			continue
		}

		if !idle {
			fmt.Fprintln(out, "! still waiting for the previous reply, message not sent (/reset starts over)")
			continue
		}

		// Failures are reported through OnError.
		_ = ctrl.Submit(line)
	}
}

func replyWait(cfg config.ChatConfig) time.Duration {
	if cfg.ReplyTimeout > 0 {
		return cfg.ReplyTimeout + time.Second
	}
	return pendingWait
}

// waitFor polls the controller until cond holds, the timeout passes or ctx ends.
func waitFor(ctx context.Context, ctrl *conversation.Controller, timeout time.Duration, cond func(conversation.State) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	for {
		if cond(ctrl.Snapshot()) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// terminalView renders state changes as an append-only transcript.
type terminalView struct {
	out io.Writer

	connected bool
	printed   int
	streamed  string
	recs      string
}

func (v *terminalView) render(s conversation.State) {
	if s.Connected != v.connected {
		v.connected = s.Connected
		if s.Connected {
			fmt.Fprintln(v.out, "-- connected --")
		} else {
			fmt.Fprintln(v.out, "-- connection lost, reconnecting --")
		}
	}

	if len(s.Messages) < v.printed {
		// Reset or a retracted message.
		v.printed = len(s.Messages)
		v.streamed = ""
	}

	if strings.HasPrefix(s.Streaming, v.streamed) && len(s.Streaming) > len(v.streamed) {
		if v.streamed == "" {
			fmt.Fprint(v.out, "assistant> ")
		}
		fmt.Fprint(v.out, s.Streaming[len(v.streamed):])
		v.streamed = s.Streaming
	}

	for ; v.printed < len(s.Messages); v.printed++ {
		msg := s.Messages[v.printed]
		if msg.Role != conversation.RoleAssistant {
			continue
		}
		switch {
		case v.streamed == "":
			fmt.Fprintf(v.out, "assistant> %s\n", msg.Content)
		case v.streamed != msg.Content:
			fmt.Fprintf(v.out, "\nassistant (final)> %s\n", msg.Content)
		default:
			fmt.Fprintln(v.out)
		}
		v.streamed = ""
	}

	if recs := formatRecommendations(s.Recommendations); recs != v.recs {
		v.recs = recs
		if recs != "" {
			fmt.Fprint(v.out, recs)
		}
	}
}

func formatRecommendations(recs []protocol.CourseRecommendation) string {
	if len(recs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recommended courses:\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "  * %s (%s, %s) %s\n", r.CourseName, r.Duration, r.Price, r.URL)
	}
	return b.String()
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
