// Package conversation owns the visible chat state: the message log, the
// streaming buffer for the in-flight reply, the busy flag, the session and
// the current course recommendations.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/deepgram/coursechat/internal/protocol"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrReplyTimeout ends a cycle whose reply did not arrive within ReplyTimeout.
var ErrReplyTimeout = errors.New("timed out waiting for reply")

// SessionClient is the part of the protocol client the Controller drives.
type SessionClient interface {
	Connect(handlers protocol.EventHandlers)
	Disconnect()
	IsConnected() bool
	StartSession(req protocol.StartSessionRequest) error
	SendMessage(req protocol.SendMessageRequest) error
}

type Options struct {
	// ReplyTimeout bounds the wait for Final or Error. Zero disables it.
	ReplyTimeout time.Duration
	// Metadata is attached to every outbound message.
	Metadata map[string]string
	// OnError receives connectivity errors, server errors and timeouts.
	OnError func(error)
}

type subscription struct {
	id int
	fn func(State)
}

type Controller struct {
	client SessionClient
	userID string
	opts   Options
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	cycle    uint64
	watchdog *time.Timer

	subsMu      sync.Mutex
	subscribers []subscription
	nextSub     int

	notify    *notifier
	closeOnce sync.Once
}

// New builds a Controller for one identity. Call Start to connect.
func New(client SessionClient, userID string, opts Options) *Controller {
	return &Controller{
		client: client,
		userID: userID,
		opts:   opts,
		log:    logger.With(logger.CHAT).With().Str("user_id", userID).Logger(),
		state:  emptyState(false),
		notify: newNotifier(),
	}
}

// Start connects the underlying client. A session is started automatically
// once the connection is up.
func (c *Controller) Start() {
	c.client.Connect(protocol.EventHandlers{
		OnConnect:        c.handleConnect,
		OnDisconnect:     c.handleDisconnect,
		OnSessionStarted: c.handleSessionStarted,
		OnPartial:        c.handlePartial,
		OnFinal:          c.handleFinal,
		OnError:          c.handleError,
	})
}

// Close disconnects and stops notifications. The Controller is not reusable.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.client.Disconnect()

		c.mu.Lock()
		c.stopWatchdog()
		c.mu.Unlock()

		c.notify.stop()
	})
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn for state changes. Callbacks run on a dedicated
// goroutine in change order and may call back into the Controller.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers = append(c.subscribers, subscription{id: id, fn: fn})
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		for i, sub := range c.subscribers {
			if sub.id == id {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Submit sends one user message as typed. Blank text and submissions while a
// reply is pending are ignored. Without a connection it returns
// protocol.ErrNotConnected and leaves the log untouched.
func (c *Controller) Submit(text string) error {
	c.mu.Lock()
	if strings.TrimSpace(text) == "" || c.state.Busy {
		c.mu.Unlock()
		return nil
	}

	if !c.client.IsConnected() {
		c.emitError(protocol.ErrNotConnected)
		c.mu.Unlock()
		return protocol.ErrNotConnected
	}

	c.state.Messages = append(c.state.Messages, Message{Role: RoleUser, Content: text})
	c.state.Busy = true
	c.state.Streaming = ""
	c.cycle++
	cycle := c.cycle
	c.armWatchdog(cycle)

	req := protocol.SendMessageRequest{
		UserID:    c.userID,
		SessionID: c.state.Session.ID,
		Message:   text,
		Metadata:  c.opts.Metadata,
	}
	c.publish()
	c.mu.Unlock()

	c.log.Debug().Str("session_id", req.SessionID).Uint64("cycle", cycle).Msg("Submitting message")

	if err := c.client.SendMessage(req); err != nil {
		c.log.Error().Err(err).Msg("Failed to send message")
		c.fail(cycle, err)
		return err
	}
	return nil
}

// Reset clears the conversation and, when connected, starts a fresh session.
func (c *Controller) Reset() {
	c.mu.Lock()
	connected := c.client.IsConnected()
	c.stopWatchdog()
	c.cycle++
	c.state = emptyState(connected)
	if connected {
		c.state.Session.Status = SessionPending
	}
	c.publish()
	c.mu.Unlock()

	c.log.Info().Bool("connected", connected).Msg("Conversation reset")

	if connected {
		c.startSession()
	}
}

func (c *Controller) handleConnect() {
	c.mu.Lock()
	c.state.Connected = true
	needSession := c.state.Session.Status == SessionAbsent
	if needSession {
		c.state.Session.Status = SessionPending
	}
	c.publish()
	c.mu.Unlock()

	if needSession {
		c.startSession()
	}
}

func (c *Controller) handleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Connected = false
	if c.state.Session.Status == SessionPending {
		c.state.Session.Status = SessionAbsent
	}
	c.publish()

	c.log.Warn().Bool("busy", c.state.Busy).Msg("Connection lost")
}

func (c *Controller) handleSessionStarted(p protocol.SessionStarted) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Session = Session{
		ID:                 p.SessionID,
		PreviousResponseID: p.PreviousResponseID,
		Status:             SessionActive,
	}
	c.publish()

	c.log.Info().Str("session_id", p.SessionID).Msg("Session active")
}

func (c *Controller) handlePartial(p protocol.Partial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Busy {
		c.log.Debug().Msg("Ignoring partial with no reply pending")
		return
	}

	c.state.Streaming += p.Delta
	c.publish()
}

func (c *Controller) handleFinal(p protocol.Final) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Busy {
		c.log.Debug().Str("session_id", p.SessionID).Msg("Ignoring final with no reply pending")
		return
	}

	c.stopWatchdog()
	c.state.Streaming = ""
	c.state.Messages = append(c.state.Messages, Message{Role: RoleAssistant, Content: p.Reply})
	if p.SessionID != "" {
		c.state.Session.ID = p.SessionID
		c.state.Session.Status = SessionActive
	}
	if p.PreviousResponseID != "" {
		c.state.Session.PreviousResponseID = p.PreviousResponseID
	}
	if p.HasNewRecommendations {
		c.state.Recommendations = append([]protocol.CourseRecommendation(nil), p.Recommendations...)
	}
	c.state.CitedRegulations = append([]string(nil), p.CitedRegulations...)
	c.state.Busy = false
	c.publish()

	c.log.Info().
		Str("session_id", c.state.Session.ID).
		Int("reply_len", len(p.Reply)).
		Bool("new_recommendations", p.HasNewRecommendations).
		Msg("Reply finalized")
}

func (c *Controller) handleError(p protocol.ErrorPayload) {
	c.mu.Lock()
	busy := c.state.Busy
	cycle := c.cycle
	if !busy && c.state.Session.Status == SessionPending {
		// The service refused to start the session; allow a later retry.
		c.state.Session.Status = SessionAbsent
		c.publish()
	}
	c.mu.Unlock()

	err := &protocol.ServerError{Message: p.Message}
	if busy {
		c.fail(cycle, err)
		return
	}

	c.mu.Lock()
	c.emitError(err)
	c.mu.Unlock()
}

// fail ends cycle abnormally: the buffer is dropped and the unanswered user
// message is retracted. Stale cycles are ignored.
func (c *Controller) fail(cycle uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle != c.cycle || !c.state.Busy {
		return
	}

	c.stopWatchdog()
	c.state.Streaming = ""
	c.state.Busy = false
	if n := len(c.state.Messages); n > 0 && c.state.Messages[n-1].Role == RoleUser {
		c.state.Messages = c.state.Messages[:n-1]
	}
	c.publish()
	c.emitError(err)

	c.log.Warn().Err(err).Uint64("cycle", cycle).Msg("Reply failed, message retracted")
}

func (c *Controller) startSession() {
	c.mu.Lock()
	req := protocol.StartSessionRequest{UserID: c.userID, SessionID: c.state.Session.ID}
	c.mu.Unlock()

	if err := c.client.StartSession(req); err != nil {
		c.log.Error().Err(err).Msg("Failed to start session")

		c.mu.Lock()
		if c.state.Session.Status == SessionPending {
			c.state.Session.Status = SessionAbsent
			c.publish()
		}
		c.mu.Unlock()
	}
}

// armWatchdog and stopWatchdog must be called with c.mu held.
func (c *Controller) armWatchdog(cycle uint64) {
	c.stopWatchdog()
	if c.opts.ReplyTimeout <= 0 {
		return
	}
	c.watchdog = time.AfterFunc(c.opts.ReplyTimeout, func() {
		c.fail(cycle, ErrReplyTimeout)
	})
}

func (c *Controller) stopWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// publish queues the current state for subscribers. Must hold c.mu.
func (c *Controller) publish() {
	snapshot := c.state.clone()
	c.notify.push(func() {
		c.subsMu.Lock()
		subs := append([]subscription(nil), c.subscribers...)
		c.subsMu.Unlock()

		for _, sub := range subs {
			sub.fn(snapshot)
		}
	})
}

// emitError queues err for OnError. Must hold c.mu.
func (c *Controller) emitError(err error) {
	if c.opts.OnError == nil {
		return
	}
	onError := c.opts.OnError
	c.notify.push(func() { onError(err) })
}
