package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Options configures a WebSocket Client.
type Options struct {
	URL string
	// Token, when set, is sent as a bearer token in the handshake.
	Token string
	// ReconnectDelay is the fixed wait before every reconnection attempt.
	ReconnectDelay time.Duration
	// ReconnectAttempts bounds the dials after a failed first dial, and the
	// dials after each drop.
	ReconnectAttempts int
	Timeouts          TimeoutConfig
	Dialer            *websocket.Dialer
}

// Client is a Transport over a gorilla WebSocket connection.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	state    ConnectionState
	conn     *websocket.Conn
	handlers Handlers
	cancel   context.CancelFunc

	writeMu sync.Mutex
}

var _ Transport = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.Timeouts == (TimeoutConfig{}) {
		opts.Timeouts = DefaultTimeouts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	return &Client{
		opts:  opts,
		log:   logger.With(logger.TRANSPORT).With().Str("url", opts.URL).Logger(),
		state: StateDisconnected,
	}
}

func (c *Client) Connect(handlers Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.handlers = handlers
	c.cancel = cancel
	c.state = StateConnecting

	go c.run(ctx)
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.handlers = Handlers{}
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.Timeouts.WriteWait))
		c.writeMu.Unlock()
		conn.Close()
		c.log.Info().Msg("Disconnected")
	}
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Emit(event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.Timeouts.WriteWait)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrapf(err, "emit %s", event)
	}

	c.log.Debug().Str("event", event).Int("bytes", len(frame)).Msg("Emitted event")
	return nil
}

// run owns one Connect generation: dial, read until the connection drops,
// then reconnect until the retry budget is spent or ctx is cancelled.
func (c *Client) run(ctx context.Context) {
	for dropped := false; ; dropped = true {
		conn, err := c.dial(ctx, dropped)
		if err != nil {
			c.mu.Lock()
			if ctx.Err() == nil {
				c.state = StateDisconnected
				c.cancel = nil
				c.handlers = Handlers{}
			}
			c.mu.Unlock()
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Int("attempts", c.opts.ReconnectAttempts).Msg("Giving up connecting")
			}
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		handlers := c.handlers
		c.mu.Unlock()

		c.log.Info().Msg("Connected")
		if handlers.OnConnect != nil {
			handlers.OnConnect()
		}

		err = c.readLoop(ctx, conn)
		conn.Close()

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.state = StateConnecting
		handlers = c.handlers
		c.mu.Unlock()

		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.log.Warn().Err(err).Msg("Connection dropped unexpectedly")
		} else {
			c.log.Info().Err(err).Msg("Connection closed")
		}
		if handlers.OnDisconnect != nil {
			handlers.OnDisconnect()
		}
	}
}

// dial makes the first connection attempt immediately and retries up to
// ReconnectAttempts times. After a drop every attempt, the first included,
// waits ReconnectDelay, and ReconnectAttempts is the whole budget.
func (c *Client) dial(ctx context.Context, afterDrop bool) (*websocket.Conn, error) {
	retries := uint64(c.opts.ReconnectAttempts)
	if afterDrop {
		if retries == 0 {
			return nil, errors.New("reconnection disabled")
		}
		wait := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		}
		retries--
	}

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	var conn *websocket.Conn
	operation := func() error {
		dialed, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(errors.Wrapf(err, "dial %s: unauthorized", c.opts.URL))
			}
			return errors.Wrapf(err, "dial %s", c.opts.URL)
		}
		conn = dialed
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.ReconnectDelay), retries),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", wait).Msg("Connection attempt failed")
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	timeouts := c.opts.Timeouts

	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))

		if messageType != websocket.TextMessage {
			continue
		}

		event, err := Decode(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		c.mu.Lock()
		onEvent := c.handlers.OnEvent
		live := ctx.Err() == nil
		c.mu.Unlock()

		if !live {
			return ctx.Err()
		}
		if onEvent != nil {
			onEvent(event)
		}
	}
}
