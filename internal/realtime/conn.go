package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"

	"github.com/gorilla/websocket"
)

// WSDialer opens websocket connections to the backend's realtime endpoint,
// keyed by user: SOCKET_URL?userId=<id>.
type WSDialer struct {
	cfg config.RealtimeConfig
}

// NewWSDialer creates a Dialer from configuration.
func NewWSDialer(cfg config.RealtimeConfig) *WSDialer {
	return &WSDialer{cfg: cfg}
}

// Dial establishes the websocket connection and starts its pumps.
func (d *WSDialer) Dial(ctx context.Context, userID string) (Transport, error) {
	u, err := url.Parse(d.cfg.SocketURL)
	if err != nil {
		return nil, &ConnectionError{URL: d.cfg.SocketURL, Err: err}
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, &ConnectionError{URL: u.String(), Err: err}
	}

	t := &wsTransport{
		conn:   conn,
		cfg:    d.cfg,
		send:   make(chan []byte, 256),
		events: make(chan chattypes.Event, 256),
		done:   make(chan struct{}),
	}
	go t.writePump()
	go t.readPump()
	return t, nil
}

// wsTransport is a live websocket connection with the usual two pumps:
// readPump turns incoming frames into events, writePump serializes all
// writes and keeps the connection alive with pings.
type wsTransport struct {
	conn   *websocket.Conn
	cfg    config.RealtimeConfig
	send   chan []byte
	events chan chattypes.Event
	done   chan struct{}

	closeOnce sync.Once
}

func (t *wsTransport) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(chattypes.Event{Name: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return &ConnectionError{URL: t.conn.RemoteAddr().String(), Err: errClosed}
	}
}

func (t *wsTransport) Events() <-chan chattypes.Event { return t.events }

func (t *wsTransport) Done() <-chan struct{} { return t.done }

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.Close()
	})
	return nil
}

var errClosed = &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "transport closed"}

// readPump pumps frames from the websocket connection onto the events
// channel until the connection ends.
func (t *wsTransport) readPump() {
	defer func() {
		t.Close()
		close(t.events)
	}()
	t.conn.SetReadLimit(t.cfg.MaxMessageSizeBytes)
	t.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		return nil
	})

	for {
		messageType, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event chattypes.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("realtime: malformed frame: %v, raw: %s", err, string(raw))
			continue
		}

		select {
		case t.events <- event:
		case <-t.done:
			return
		}
	}
}

// writePump pumps outbound frames to the websocket connection and sends
// pings with the configured period.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		t.Close()
	}()
	for {
		select {
		case frame := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
