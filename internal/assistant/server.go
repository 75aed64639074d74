package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/internal/connections"
	"github.com/deepgram/coursechat/internal/protocol"
	"github.com/deepgram/coursechat/internal/transport"
	"github.com/deepgram/coursechat/pkg/httpext"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/deepgram/coursechat/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	inboxSize       = 16
	shutdownTimeout = 5 * time.Second
)

type Options struct {
	Sessions  SessionStore
	Responder Responder
	Timeouts  connections.TimeoutConfig
	// RequireAuth rejects websocket upgrades without a valid bearer token.
	// A token that is present is always validated.
	RequireAuth bool
	ChatLimit   config.RateLimitConfig
	TokenLimit  config.RateLimitConfig
	// ReplyTimeout bounds one Respond call. Zero means no bound.
	ReplyTimeout time.Duration
}

type Server struct {
	opts     Options
	conns    *connections.Manager
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = NewMemorySessionStore()
	}
	if opts.Responder == nil {
		opts.Responder = NewScriptedResponder(DefaultCatalog)
	}
	if opts.Timeouts == (connections.TimeoutConfig{}) {
		opts.Timeouts = connections.DefaultTimeouts
	}

	s := &Server{
		opts:  opts,
		conns: connections.NewManager(opts.Timeouts),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.With(logger.ASSISTANT),
	}
	if opts.ChatLimit.Enabled {
		s.limiter = ratelimit.NewLimiter(opts.ChatLimit.Window, opts.ChatLimit.MaxHits)
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/oauth/token", RateLimit(s.opts.TokenLimit)(http.HandlerFunc(HandleToken))).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

// Connections reports the number of live chat sockets.
func (s *Server) Connections() int {
	return s.conns.GetConnectionCount()
}

// ListenAndServe runs the service until ctx is cancelled, then closes every
// chat socket and drains HTTP requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", addr).Msg("Assistant listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		closed := s.conns.CloseAll("server shutting down")
		s.log.Info().Int("connections", closed).Msg("Assistant shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpext.Json(w, http.StatusOK, map[string]int{"connections": s.Connections()})
}

// HandleWebSocket upgrades one chat client and serves it until it leaves.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := ExtractToken(r)
	if token == "" && s.opts.RequireAuth {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if token != "" {
		if _, err := ValidateToken(token); err != nil {
			s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected chat socket token")
			httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Could not upgrade connection")
		return
	}

	cc := &chatConn{
		id:       uuid.New().String(),
		conn:     conn,
		timeouts: s.conns.GetTimeouts(),
	}
	cc.log = s.log.With().Str("connection_id", cc.id).Logger()

	s.conns.AddConnection(conn, connections.Info{ID: cc.id})
	cc.log.Info().Str("remote_addr", r.RemoteAddr).Int("connections", s.Connections()).Msg("Chat socket connected")

	s.serve(cc)
}

// chatConn is one upgraded socket. sessionID is owned by the worker goroutine.
type chatConn struct {
	id        string
	conn      *websocket.Conn
	timeouts  connections.TimeoutConfig
	log       zerolog.Logger
	writeMu   sync.Mutex
	sessionID string
}

func (c *chatConn) emit(event string, payload any) error {
	frame, err := transport.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Server) serve(cc *chatConn) {
	ctx, cancel := context.WithCancel(context.Background())
	inbox := make(chan transport.Event, inboxSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.keepalive(ctx, cc)
	}()
	go func() {
		defer wg.Done()
		for event := range inbox {
			s.dispatch(ctx, cc, event)
		}
	}()

	defer func() {
		cancel()
		close(inbox)
		wg.Wait()

		info, _ := s.conns.Lookup(cc.conn)
		s.conns.RemoveConnection(cc.conn)
		if s.limiter != nil {
			s.limiter.Forget(cc.id)
		}
		cc.conn.Close()
		cc.log.Info().
			Str("user_id", info.UserID).
			Str("session_id", info.SessionID).
			Dur("duration", time.Since(info.ConnectedAt)).
			Int("connections", s.Connections()).
			Msg("Chat socket closed")
	}()

	pongWait := cc.timeouts.PongWait
	cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	cc.conn.SetPongHandler(func(string) error {
		return cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cc.log.Warn().Err(err).Msg("Chat socket dropped")
			}
			return
		}
		cc.conn.SetReadDeadline(time.Now().Add(pongWait))

		event, err := transport.Decode(frame)
		if err != nil {
			cc.log.Warn().Err(err).Msg("Discarding malformed frame")
			continue
		}

		select {
		case inbox <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) keepalive(ctx context.Context, cc *chatConn) {
	ticker := time.NewTicker(cc.timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(cc.timeouts.WriteWait)
			if err := cc.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				cc.log.Debug().Err(err).Msg("Ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cc *chatConn, event transport.Event) {
	switch event.Name {
	case protocol.EventStart:
		s.handleStart(ctx, cc, event.Payload)
	case protocol.EventMessage:
		s.handleMessage(ctx, cc, event.Payload)
	default:
		cc.log.Debug().Str("event", event.Name).Msg("Ignoring unsupported event")
	}
}

func (s *Server) handleStart(ctx context.Context, cc *chatConn, payload json.RawMessage) {
	var req protocol.StartSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.UserID == "" {
		s.reject(cc, "userId is required")
		return
	}

	session, resumed, err := s.openSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		cc.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to open session")
		s.reject(cc, "could not start a chat session")
		return
	}
	cc.sessionID = session.ID
	s.conns.Bind(cc.conn, req.UserID, session.ID)

	cc.log.Info().
		Str("user_id", req.UserID).
		Str("session_id", session.ID).
		Bool("resumed", resumed).
		Msg("Session started")

	if err := cc.emit(protocol.EventStarted, protocol.SessionStarted{
		SessionID:          session.ID,
		PreviousResponseID: session.PreviousResponseID,
	}); err != nil {
		cc.log.Warn().Err(err).Msg("Failed to acknowledge session")
	}
}

func (s *Server) handleMessage(ctx context.Context, cc *chatConn, payload json.RawMessage) {
	if s.limiter != nil && !s.limiter.Allow(cc.id) {
		cc.log.Warn().Msg("Chat message rate limit exceeded")
		s.reject(cc, "rate limit exceeded, slow down")
		return
	}

	var req protocol.SendMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.reject(cc, "malformed chat message")
		return
	}
	text := strings.TrimSpace(req.Message)
	switch {
	case req.UserID == "":
		s.reject(cc, "userId is required")
		return
	case text == "":
		s.reject(cc, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = cc.sessionID
	}
	session, _, err := s.openSession(ctx, req.UserID, sessionID)
	if err != nil {
		cc.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load session")
		s.reject(cc, "could not load the chat session")
		return
	}
	cc.sessionID = session.ID
	s.conns.Bind(cc.conn, req.UserID, session.ID)

	replyCtx := ctx
	if s.opts.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		replyCtx, cancel = context.WithTimeout(ctx, s.opts.ReplyTimeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := s.opts.Responder.Respond(replyCtx, Request{
		SessionID: session.ID,
		UserID:    req.UserID,
		Message:   text,
		Metadata:  req.Metadata,
		History:   session.History,
	}, func(delta string) error {
		return cc.emit(protocol.EventPartial, protocol.Partial{Delta: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		cc.log.Error().Err(err).Str("session_id", session.ID).Msg("Responder failed")
		s.reject(cc, replyErrorMessage(err))
		return
	}

	session.Append(Turn{Role: RoleUser, Content: text}, Turn{Role: RoleAssistant, Content: reply.Text})
	session.PreviousResponseID = uuid.New().String()
	if err := s.opts.Sessions.Save(ctx, session); err != nil {
		cc.log.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to persist session history")
	}

	recommendations := reply.Recommendations
	if recommendations == nil {
		recommendations = []protocol.CourseRecommendation{}
	}

	cc.log.Info().
		Str("session_id", session.ID).
		Dur("elapsed", time.Since(started)).
		Int("recommendations", len(recommendations)).
		Msg("Reply delivered")

	if err := cc.emit(protocol.EventFinal, protocol.Final{
		Reply:                 reply.Text,
		HasNewRecommendations: reply.HasNewRecommendations,
		Recommendations:       recommendations,
		CitedRegulations:      reply.CitedRegulations,
		PreviousResponseID:    session.PreviousResponseID,
		SessionID:             session.ID,
	}); err != nil {
		cc.log.Warn().Err(err).Msg("Failed to deliver final reply")
	}
}

// openSession resumes sessionID when it exists for userID and creates a fresh
// session otherwise.
func (s *Server) openSession(ctx context.Context, userID, sessionID string) (*Session, bool, error) {
	if sessionID != "" {
		existing, err := s.opts.Sessions.Get(ctx, sessionID)
		switch {
		case err == nil && existing.UserID == userID:
			return existing, true, nil
		case err == nil:
			s.log.Warn().Str("session_id", sessionID).Str("user_id", userID).Msg("Session belongs to another user")
		case !errors.Is(err, ErrSessionNotFound):
			return nil, false, err
		}
	}

	session := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		UpdatedAt: time.Now(),
	}
	if err := s.opts.Sessions.Save(ctx, session); err != nil {
		return nil, false, err
	}
	return session, false, nil
}

func (s *Server) reject(cc *chatConn, message string) {
	if err := cc.emit(protocol.EventError, protocol.ErrorPayload{Message: message}); err != nil {
		cc.log.Warn().Err(err).Str("message", message).Msg("Failed to send chat error")
	}
}

func replyErrorMessage(err error) string {
	var public *PublicError
	switch {
	case errors.As(err, &public):
		return public.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "the assistant took too long to reply"
	default:
		return "failed to generate a reply"
	}
}
