package chattypes

import (
	"strings"
	"time"
)

// The backend contract has drifted across deployments: some endpoints emit
// `_id` where others emit `id`, `from`/`to` where others emit
// `senderId`/`receiverId`, `text` where others emit `content`, and either
// an `isRead` boolean or a `status` enum for delivery tracking. Rather
// than branching on shape at every call site, every payload passes through
// WireMessage exactly once at the API boundary and comes out canonical.

// WireMessage accepts a message in any of the shapes the backend emits.
type WireMessage struct {
	ID    string `json:"id,omitempty"`
	AltID string `json:"_id,omitempty"`

	SenderID string `json:"senderId,omitempty"`
	From     string `json:"from,omitempty"`

	ReceiverID string `json:"receiverId,omitempty"`
	To         string `json:"to,omitempty"`

	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`

	MessageType string `json:"messageType,omitempty"`

	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`

	IsRead *bool  `json:"isRead,omitempty"`
	Status string `json:"status,omitempty"`

	CreatedAt      string `json:"createdAt,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Normalize converts a wire message to the canonical shape.
func (w *WireMessage) Normalize() Message {
	m := Message{
		ID:             firstNonEmpty(w.ID, w.AltID),
		SenderID:       firstNonEmpty(w.SenderID, w.From),
		ReceiverID:     firstNonEmpty(w.ReceiverID, w.To),
		Content:        firstNonEmpty(w.Content, w.Text),
		Kind:           KindFromWire(w.MessageType),
		FileURL:        w.FileURL,
		FileName:       w.FileName,
		FileSize:       w.FileSize,
		ConversationID: w.ConversationID,
		CreatedAt:      parseWireTime(w.CreatedAt),
	}

	switch {
	case w.Status != "":
		m.DeliveryState = normalizeStatus(w.Status)
	case w.IsRead != nil && *w.IsRead:
		m.DeliveryState = ReadState
	default:
		m.DeliveryState = SentState
	}
	return m
}

// WireConversation is the conversation list entry as the backend returns it.
type WireConversation struct {
	ID        string `json:"id,omitempty"`
	AltID     string `json:"_id,omitempty"`
	OtherUser struct {
		ID    string `json:"id,omitempty"`
		AltID string `json:"_id,omitempty"`
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
	} `json:"otherUser"`
	LastMessage   string `json:"lastMessage,omitempty"`
	LastMessageAt string `json:"lastMessageAt,omitempty"`
}

// Normalize converts a wire conversation to the canonical shape.
func (w *WireConversation) Normalize() Conversation {
	return Conversation{
		ID:            firstNonEmpty(w.ID, w.AltID),
		PeerID:        firstNonEmpty(w.OtherUser.ID, w.OtherUser.AltID),
		PeerName:      w.OtherUser.Name,
		PeerEmail:     w.OtherUser.Email,
		LastMessage:   w.LastMessage,
		LastMessageAt: parseWireTime(w.LastMessageAt),
	}
}

// KindFromWire maps the backend's messageType enum (TEXT/IMAGE/PDF) to the
// canonical kind. Unknown values are treated as text so an unexpected
// enum member never drops a message.
func KindFromWire(messageType string) MessageKind {
	switch strings.ToUpper(messageType) {
	case "IMAGE":
		return ImageKind
	case "PDF", "DOCUMENT", "FILE":
		return DocumentKind
	default:
		return TextKind
	}
}

// KindToWire maps a canonical kind back to the backend's messageType enum.
func KindToWire(kind MessageKind) string {
	switch kind {
	case ImageKind:
		return "IMAGE"
	case DocumentKind:
		return "PDF"
	default:
		return "TEXT"
	}
}

func normalizeStatus(status string) DeliveryState {
	switch strings.ToLower(status) {
	case "delivered":
		return DeliveredState
	case "read":
		return ReadState
	default:
		return SentState
	}
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Some endpoints emit timestamps without a zone.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
