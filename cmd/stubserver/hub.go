package main

import (
	"encoding/json"
	"log"

	"daymoon-client/internal/chattypes"
)

// directFrame targets one connected user.
type directFrame struct {
	userID string
	event  chattypes.Event
}

// onlineQuery asks the run loop whether a user is connected.
type onlineQuery struct {
	userID string
	reply  chan bool
}

// Hub maintains the set of active realtime clients and routes events to
// them. One connection per user: registering a new connection for a user
// replaces the old one, so duplicate event delivery cannot happen.
type Hub struct {
	clients map[string]*wsClient

	register   chan *wsClient
	unregister chan *wsClient
	direct     chan directFrame
	broadcast  chan chattypes.Event
	online     chan onlineQuery
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		direct:     make(chan directFrame, 256),
		broadcast:  make(chan chattypes.Event, 64),
		online:     make(chan onlineQuery),
	}
}

// Online reports whether userID currently has a registered connection.
func (h *Hub) Online(userID string) bool {
	reply := make(chan bool, 1)
	h.online <- onlineQuery{userID: userID, reply: reply}
	return <-reply
}

// SendToUser queues an event for one user. Non-blocking so callers (HTTP
// handlers) are never stalled by a full hub.
func (h *Hub) SendToUser(userID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("hub: encode %s payload: %v", event, err)
		return
	}
	frame := directFrame{userID: userID, event: chattypes.Event{Name: event, Data: data}}
	select {
	case h.direct <- frame:
	default:
		log.Printf("hub: direct channel full, dropping %s for user %s", event, userID)
	}
}

// Broadcast queues an event for every connected user.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("hub: encode %s payload: %v", event, err)
		return
	}
	select {
	case h.broadcast <- chattypes.Event{Name: event, Data: data}:
	default:
		log.Printf("hub: broadcast channel full, dropping %s", event)
	}
}

// Run processes register, unregister and delivery requests. Must run in
// its own goroutine before the first connection is accepted.
func (h *Hub) Run() {
	log.Println("websocket hub started")
	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.userID]; ok {
				log.Printf("hub: user %s already connected, replacing old connection", client.userID)
				close(existing.send)
			}
			h.clients[client.userID] = client
			log.Printf("hub: user %s connected", client.userID)
			// Tell the newcomer who is already here before announcing them.
			for userID := range h.clients {
				if userID == client.userID {
					continue
				}
				h.sendTo(client, chattypes.EventUserOnline, chattypes.PresencePayload{UserID: userID})
			}
			h.fanOut(chattypes.EventUserOnline, chattypes.PresencePayload{UserID: client.userID})

		case client := <-h.unregister:
			if stored, ok := h.clients[client.userID]; ok && stored == client {
				delete(h.clients, client.userID)
				close(client.send)
				log.Printf("hub: user %s disconnected", client.userID)
				h.fanOut(chattypes.EventUserOffline, chattypes.PresencePayload{UserID: client.userID})
			}

		case query := <-h.online:
			_, connected := h.clients[query.userID]
			query.reply <- connected

		case frame := <-h.direct:
			client, ok := h.clients[frame.userID]
			if !ok {
				continue
			}
			raw, err := json.Marshal(frame.event)
			if err != nil {
				log.Printf("hub: encode direct frame: %v", err)
				continue
			}
			select {
			case client.send <- raw:
			default:
				log.Printf("hub: send buffer full for user %s, dropping connection", frame.userID)
				close(client.send)
				delete(h.clients, frame.userID)
			}

		case event := <-h.broadcast:
			raw, err := json.Marshal(event)
			if err != nil {
				log.Printf("hub: encode broadcast frame: %v", err)
				continue
			}
			for userID, client := range h.clients {
				select {
				case client.send <- raw:
				default:
					log.Printf("hub: send buffer full for user %s, dropping connection", userID)
					close(client.send)
					delete(h.clients, userID)
				}
			}
		}
	}
}

// sendTo encodes and queues an event for one client from within the run
// loop.
func (h *Hub) sendTo(client *wsClient, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(chattypes.Event{Name: event, Data: data})
	if err != nil {
		return
	}
	select {
	case client.send <- raw:
	default:
	}
}

// fanOut sends an event to every connected client from within the run
// loop.
func (h *Hub) fanOut(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(chattypes.Event{Name: event, Data: data})
	if err != nil {
		return
	}
	for userID, client := range h.clients {
		select {
		case client.send <- raw:
		default:
			log.Printf("hub: send buffer full for user %s, dropping connection", userID)
			close(client.send)
			delete(h.clients, userID)
		}
	}
}
