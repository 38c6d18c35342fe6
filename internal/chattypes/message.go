package chattypes

import "time"

// MessageKind defines the kind of a message.
type MessageKind string

const (
	TextKind     MessageKind = "text"
	ImageKind    MessageKind = "image"
	DocumentKind MessageKind = "document"
)

// DeliveryState tracks how far a message has progressed towards the peer.
type DeliveryState string

const (
	// PendingState is a local-only state: the message has been appended
	// optimistically and the server has not confirmed it yet.
	PendingState   DeliveryState = "pending"
	SentState      DeliveryState = "sent"
	DeliveredState DeliveryState = "delivered"
	ReadState      DeliveryState = "read"
	// FailedState is local-only: the send request errored. Entries in this
	// state are removed from the timeline and the content handed back to
	// the caller.
	FailedState DeliveryState = "failed"
)

// deliveryRank orders the server-driven states. Pending and Failed are
// local bookkeeping and never arrive over the wire.
var deliveryRank = map[DeliveryState]int{
	PendingState:   0,
	FailedState:    0,
	SentState:      1,
	DeliveredState: 2,
	ReadState:      3,
}

// Dominates reports whether s supersedes other. A status update is applied
// only when the new state dominates the current one, so a "read" event
// arriving before the matching "delivered" event cannot be rolled back.
func (s DeliveryState) Dominates(other DeliveryState) bool {
	return deliveryRank[s] > deliveryRank[other]
}

// Message is the canonical message shape used throughout the client. The
// backend has shipped several divergent shapes over time; everything is
// funneled through the wire adapter in normalize.go before it gets here.
type Message struct {
	// ID is the server-assigned identifier, stable once confirmed.
	ID string `json:"id"`

	// LocalTempID is assigned by the client for optimistic sends and is
	// only meaningful while ID is empty. Exactly one of the two identifies
	// the message at any time.
	LocalTempID string `json:"localTempId,omitempty"`

	ConversationID string        `json:"conversationId,omitempty"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId"`
	Content        string        `json:"content"`
	Kind           MessageKind   `json:"kind"`
	FileURL        string        `json:"fileUrl,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	FileSize       int64         `json:"fileSize,omitempty"`
	DeliveryState  DeliveryState `json:"deliveryState"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Confirmed reports whether the message has a server identity.
func (m *Message) Confirmed() bool {
	return m.ID != ""
}

// UserInfo holds the public fields of a user as the backend returns them.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Conversation summarizes the interaction with a single peer, as listed in
// the conversation sidebar. The message timeline itself lives in the
// session package.
type Conversation struct {
	ID            string    `json:"id"`
	PeerID        string    `json:"peerId"`
	PeerName      string    `json:"peerName,omitempty"`
	PeerEmail     string    `json:"peerEmail,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}
