// Package transport carries named events over one persistent connection to
// the assistant service. It knows nothing about chat sessions.
package transport

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ConnectionState is owned by the transport and only observed by callers.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

var ErrNotConnected = errors.New("transport: not connected")

// Event is one inbound named event with its still-encoded payload.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Handlers are invoked from a single goroutine per connection, in order.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnEvent      func(Event)
}

// Transport is the capability the session protocol is layered on.
type Transport interface {
	// Connect starts connecting in the background. It is a no-op while a
	// connection is being established or is up.
	Connect(handlers Handlers)
	// Disconnect drops handlers and the connection. Safe to call repeatedly.
	Disconnect()
	IsConnected() bool
	State() ConnectionState
	Emit(event string, payload any) error
}

// TimeoutConfig holds the keepalive settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode frames an event as {"event": name, "data": payload}.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, errors.New("transport: empty event name")
	}

	env := envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", event)
		}
		env.Data = data
	}

	return json.Marshal(env)
}

// Decode parses one frame produced by Encode.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, errors.Wrap(err, "decode frame")
	}
	if env.Event == "" {
		return Event{}, errors.New("transport: frame without event name")
	}
	return Event{Name: env.Event, Payload: env.Data}, nil
}
