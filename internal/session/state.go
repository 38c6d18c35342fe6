package session

import "daymoon-client/internal/chattypes"

// ConnectionState is the lifecycle state of the realtime session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	// StateFailed is terminal: reconnect attempts are exhausted and no
	// further retry happens until an explicit Connect resets the session.
	StateFailed ConnectionState = "failed"
)

// Session is a snapshot of the realtime session owned by a Client.
type Session struct {
	UserID               string
	State                ConnectionState
	ReconnectAttempt     int
	MaxReconnectAttempts int
}

// Conversation is the active peer conversation: the in-memory timeline the
// UI renders. It is replaced wholesale when another peer is selected.
type Conversation struct {
	ID       string
	PeerID   string
	PeerName string
	Messages []chattypes.Message
	Typing   bool
}
