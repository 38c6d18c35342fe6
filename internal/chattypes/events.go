package chattypes

import "encoding/json"

// Realtime event names. These are the wire contract with the backend and
// must not be renamed.
const (
	EventNewMessage           = "new_message"
	EventMessageUpdated       = "message_updated"
	EventMessageDeleted       = "message_deleted"
	EventMessageStatusUpdated = "message_status_updated"
	EventUserOnline           = "user_online"
	EventUserOffline          = "user_offline"
	EventTypingStart          = "typing_start"
	EventTypingStop           = "typing_stop"

	// Client-to-server emissions.
	EventSendMessage = "send_message"
)

// Event is the envelope every realtime frame is wrapped in.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageDeletedPayload is the data carried by a message_deleted event.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

// PresencePayload is the data carried by user_online and user_offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// TypingPayload is the data carried by typing_start and typing_stop.
type TypingPayload struct {
	UserID     string `json:"userId"`
	ReceiverID string `json:"receiverId,omitempty"`
}

// StatusPayload is the data carried by message_status_updated.
type StatusPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
	IsRead    *bool  `json:"isRead,omitempty"`
}

// State returns the delivery state encoded in the payload. The backend has
// used both a status enum and a bare isRead flag; the flag is treated as
// the degraded two-state form.
func (p *StatusPayload) State() DeliveryState {
	if p.Status != "" {
		return normalizeStatus(p.Status)
	}
	if p.IsRead != nil && *p.IsRead {
		return ReadState
	}
	return SentState
}
