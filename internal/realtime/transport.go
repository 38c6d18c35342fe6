package realtime

import (
	"context"
	"fmt"

	"daymoon-client/internal/chattypes"
)

// ConnectionError reports that the realtime transport could not be
// established or dropped.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime connection to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Transport is one live realtime connection. Events are delivered on a
// single channel in arrival order; Done is closed when the connection
// drops for any reason, after which the transport is dead and a new one
// must be dialed.
type Transport interface {
	// Emit sends a client event (send_message, typing_start, typing_stop).
	Emit(event string, payload interface{}) error

	// Events yields incoming server events in arrival order. The channel
	// is closed when the connection ends.
	Events() <-chan chattypes.Event

	// Done is closed once the connection has ended, whether by Close or
	// by a transport failure.
	Done() <-chan struct{}

	Close() error
}

// Dialer opens realtime connections. The session owns at most one live
// Transport at a time; the websocket implementation lives in conn.go and
// tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Transport, error)
}
