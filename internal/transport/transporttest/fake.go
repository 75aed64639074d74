// Package transporttest provides an in-memory Transport driven by tests.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/deepgram/coursechat/internal/transport"
)

// Emitted is one outbound event captured by Fake.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Fake never touches the network. Tests flip its connection with Up and
// Drop and inject inbound events with Deliver.
type Fake struct {
	mu          sync.Mutex
	state       transport.ConnectionState
	handlers    transport.Handlers
	emitted     []Emitted
	emitErr     error
	connects    int
	disconnects int
}

var _ transport.Transport = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{state: transport.StateDisconnected}
}

func (f *Fake) Connect(handlers transport.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateDisconnected {
		return
	}
	f.connects++
	f.handlers = handlers
	f.state = transport.StateConnecting
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.handlers = transport.Handlers{}
	f.state = transport.StateDisconnected
}

func (f *Fake) IsConnected() bool {
	return f.State() == transport.StateConnected
}

func (f *Fake) State() transport.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if f.emitErr != nil {
		return f.emitErr
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: data})
	return nil
}

// FailEmits makes every subsequent Emit return err. Pass nil to clear.
func (f *Fake) FailEmits(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitErr = err
}

// Up marks the connection established and fires OnConnect.
func (f *Fake) Up() {
	f.mu.Lock()
	f.state = transport.StateConnected
	onConnect := f.handlers.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
}

// Drop simulates an unexpected disconnect and fires OnDisconnect.
func (f *Fake) Drop() {
	f.mu.Lock()
	f.state = transport.StateConnecting
	onDisconnect := f.handlers.OnDisconnect
	f.mu.Unlock()

	if onDisconnect != nil {
		onDisconnect()
	}
}

// Deliver injects an inbound event. payload may be raw JSON bytes.
func (f *Fake) Deliver(event string, payload any) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			panic(err)
		}
		data = encoded
	}

	f.mu.Lock()
	onEvent := f.handlers.OnEvent
	f.mu.Unlock()

	if onEvent != nil {
		onEvent(transport.Event{Name: event, Payload: data})
	}
}

// Emitted returns a copy of everything sent so far.
func (f *Fake) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Emitted, len(f.emitted))
	copy(out, f.emitted)
	return out
}

// Connects reports how many times Connect actually started a connection.
func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects reports how many times Disconnect was called.
func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}
