package connections

import (
	"sync"
	"time"

	"github.com/deepgram/coursechat/internal/transport"
	"github.com/gorilla/websocket"
)

// TimeoutConfig holds the keepalive settings applied to every tracked connection
type TimeoutConfig = transport.TimeoutConfig

// DefaultTimeouts mirrors the client side keepalive
var DefaultTimeouts = transport.DefaultTimeouts

// Info describes one live chat connection
type Info struct {
	ID          string
	UserID      string
	SessionID   string
	ConnectedAt time.Time
}

// Manager tracks live chat connections and their keepalive settings
type Manager struct {
	connections sync.Map
	timeouts    TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(conn *websocket.Conn, info Info) {
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	m.connections.Store(conn, info)
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// Bind records the user and session a connection is chatting in
func (m *Manager) Bind(conn *websocket.Conn, userID, sessionID string) bool {
	value, ok := m.connections.Load(conn)
	if !ok {
		return false
	}
	info := value.(Info)
	info.UserID = userID
	info.SessionID = sessionID
	m.connections.Store(conn, info)
	return true
}

// Lookup returns what is known about a tracked connection
func (m *Manager) Lookup(conn *websocket.Conn) (Info, bool) {
	value, ok := m.connections.Load(conn)
	if !ok {
		return Info{}, false
	}
	return value.(Info), true
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// CloseAll sends a going-away close frame to every tracked connection.
// The read loops observe the close and unregister themselves.
func (m *Manager) CloseAll(reason string) int {
	deadline := time.Now().Add(m.GetTimeouts().WriteWait)
	closed := 0
	m.connections.Range(func(key, value interface{}) bool {
		conn := key.(*websocket.Conn)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), deadline)
		_ = conn.Close()
		closed++
		return true
	})
	return closed
}

// GetTimeouts returns the keepalive settings for new connections
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}
