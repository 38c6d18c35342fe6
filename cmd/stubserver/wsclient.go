package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dev tool, accept every origin.
		return true
	},
}

// wsClient is one user's realtime connection on the server side.
type wsClient struct {
	hub    *Hub
	store  *store
	conn   *websocket.Conn
	send   chan []byte
	userID string
	cfg    config.RealtimeConfig
}

// serveWS upgrades an HTTP request to a websocket connection and starts
// the read and write pumps for it.
func serveWS(hub *Hub, st *store, cfg config.RealtimeConfig, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId query parameter required", http.StatusBadRequest)
		return
	}
	if _, err := st.GetUserByID(userID); err != nil {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		hub:    hub,
		store:  st,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		cfg:    cfg,
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSizeBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error for user %s: %v", c.userID, err)
			}
			return
		}

		var event chattypes.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("malformed frame from user %s: %v", c.userID, err)
			continue
		}
		c.handleEvent(event)
	}
}

// handleEvent routes an inbound frame. Clients emit message echoes and
// typing notifications; everything else is ignored.
func (c *wsClient) handleEvent(event chattypes.Event) {
	switch event.Name {
	case chattypes.EventSendMessage:
		var msg chattypes.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			log.Printf("bad send_message payload from user %s: %v", c.userID, err)
			return
		}
		if msg.ReceiverID == "" || msg.ReceiverID == c.userID {
			return
		}
		// The message stays "sent" until the receiver actually has a
		// connection to deliver it to.
		if !c.hub.Online(msg.ReceiverID) {
			return
		}
		// The HTTP send already persisted the message; just relay it,
		// in the wire shape the backend emits.
		msg.SenderID = c.userID
		c.hub.SendToUser(msg.ReceiverID, chattypes.EventNewMessage, chattypes.WireMessage{
			ID:             msg.ID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			Content:        msg.Content,
			MessageType:    chattypes.KindToWire(msg.Kind),
			FileURL:        msg.FileURL,
			FileName:       msg.FileName,
			FileSize:       msg.FileSize,
			Status:         string(chattypes.SentState),
			CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
			ConversationID: msg.ConversationID,
		})

		// The receiver is connected, promote to delivered and tell the
		// sender.
		if msg.ID != "" {
			if err := c.store.MarkDelivered(msg.ID); err != nil {
				log.Printf("mark delivered %s: %v", msg.ID, err)
				return
			}
			c.hub.SendToUser(c.userID, chattypes.EventMessageStatusUpdated, chattypes.StatusPayload{
				MessageID: msg.ID,
				Status:    string(chattypes.DeliveredState),
			})
		}

	case chattypes.EventTypingStart, chattypes.EventTypingStop:
		var payload chattypes.TypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("bad typing payload from user %s: %v", c.userID, err)
			return
		}
		if payload.ReceiverID == "" {
			return
		}
		payload.UserID = c.userID
		c.hub.SendToUser(payload.ReceiverID, event.Name, payload)

	default:
		log.Printf("unhandled event %q from user %s", event.Name, c.userID)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
