package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"daymoon-client/internal/api"
	"daymoon-client/internal/auth"
	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"
	"daymoon-client/internal/realtime"

	"github.com/google/uuid"
)

// Backend is the REST surface the session consumes. *api.Client satisfies
// it; tests substitute fakes.
type Backend interface {
	ListConversations(ctx context.Context, token string) ([]chattypes.Conversation, error)
	ListMessages(ctx context.Context, token, conversationID string, page, limit int) ([]chattypes.Message, error)
	Send(ctx context.Context, token, receiverID, content string, kind chattypes.MessageKind) (chattypes.Message, error)
	UploadFile(ctx context.Context, token, receiverID string, file chattypes.FileRef, caption string) (chattypes.Message, error)
}

// Handlers are the observer callbacks the UI layer registers. All of them
// are optional and all are invoked outside the client lock.
type Handlers struct {
	// OnStateChange fires on every connection state transition. attempt
	// is the current reconnect attempt, zero outside of Reconnecting.
	OnStateChange func(state ConnectionState, attempt int)

	// OnConversationChange fires whenever the active timeline or the
	// conversation list changed and the UI should redraw.
	OnConversationChange func()

	// OnTyping fires when a peer's typing indicator turns on or off.
	OnTyping func(peerID string, typing bool)

	// OnPresence fires when a user goes online or offline.
	OnPresence func(userID string, online bool)
}

// Client owns one realtime connection for a single authenticated user and
// keeps the visible conversation's message list consistent with the
// backend. All state is guarded by mu; network calls are the only
// suspension points and never hold the lock.
type Client struct {
	backend  Backend
	dialer   realtime.Dialer
	tokens   *auth.TokenStore
	handlers Handlers

	reconnectDelay       time.Duration
	maxReconnectAttempts int
	typingExpiry         time.Duration
	uploadRules          config.UploadConfig

	mu            sync.Mutex
	userID        string
	state         ConnectionState
	attempt       int
	transport     realtime.Transport
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	conversations []chattypes.Conversation
	active        *Conversation
	selectEpoch   int
	selectCancel  context.CancelFunc

	online       map[string]struct{}
	typingTimers map[string]*time.Timer
}

// NewClient assembles a session client. handlers may be zero-valued.
func NewClient(backend Backend, dialer realtime.Dialer, tokens *auth.TokenStore, cfg config.Config, handlers Handlers) *Client {
	return &Client{
		backend:              backend,
		dialer:               dialer,
		tokens:               tokens,
		handlers:             handlers,
		reconnectDelay:       cfg.Realtime.ReconnectDelay,
		maxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		typingExpiry:         cfg.Typing.IndicatorExpiry,
		uploadRules:          cfg.Upload,
		state:                StateDisconnected,
		online:               make(map[string]struct{}),
		typingTimers:         make(map[string]*time.Timer),
	}
}

// Session returns a snapshot of the session state.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{
		UserID:               c.userID,
		State:                c.state,
		ReconnectAttempt:     c.attempt,
		MaxReconnectAttempts: c.maxReconnectAttempts,
	}
}

// Connect opens the realtime transport for userID. Opening a new transport
// closes any prior one first, so at most one is live per user. On dial
// failure the client keeps retrying in the background with a flat delay
// until the attempt budget is exhausted, then surfaces StateFailed; the
// first failure is also returned so the caller can show it immediately.
func (c *Client) Connect(ctx context.Context, userID string) (Session, error) {
	c.mu.Lock()
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
	}
	c.sessionCtx, c.sessionCancel = context.WithCancel(context.Background())
	c.userID = userID
	c.attempt = 0
	sctx := c.sessionCtx
	notify := c.setStateLocked(StateConnecting, 0)
	c.mu.Unlock()
	notify()

	transport, err := c.dialer.Dial(ctx, userID)
	if err != nil {
		go c.reconnectLoop(sctx, userID)
		return c.Session(), err
	}

	c.adoptTransport(sctx, transport)
	return c.Session(), nil
}

// Disconnect tears down the transport and session state. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	transport := c.transport
	c.transport = nil
	for peer, timer := range c.typingTimers {
		timer.Stop()
		delete(c.typingTimers, peer)
	}
	notify := c.setStateLocked(StateDisconnected, 0)
	c.mu.Unlock()
	notify()

	if transport != nil {
		transport.Close()
	}
}

// adoptTransport installs a freshly dialed transport and starts consuming
// its events.
func (c *Client) adoptTransport(sctx context.Context, transport realtime.Transport) {
	c.mu.Lock()
	if sctx.Err() != nil {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		transport.Close()
		return
	}
	c.transport = transport
	c.attempt = 0
	notify := c.setStateLocked(StateConnected, 0)
	c.mu.Unlock()
	notify()

	go c.consume(sctx, transport)
}

// consume drains the transport's events in arrival order and triggers the
// reconnect policy once the transport ends.
func (c *Client) consume(sctx context.Context, transport realtime.Transport) {
	for event := range transport.Events() {
		c.handleEvent(event)
	}

	c.mu.Lock()
	stale := c.transport != transport
	userID := c.userID
	if !stale {
		c.transport = nil
	}
	c.mu.Unlock()

	if stale || sctx.Err() != nil {
		// Replaced by a newer transport or deliberately disconnected.
		return
	}
	c.reconnectLoop(sctx, userID)
}

// reconnectLoop retries the dial with a flat delay until it succeeds or
// the attempt budget is exhausted. There is no silent infinite retry:
// exhaustion surfaces StateFailed, terminal until the next Connect.
func (c *Client) reconnectLoop(sctx context.Context, userID string) {
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		c.mu.Lock()
		if sctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		c.attempt = attempt
		notify := c.setStateLocked(StateReconnecting, attempt)
		c.mu.Unlock()
		notify()

		select {
		case <-time.After(c.reconnectDelay):
		case <-sctx.Done():
			return
		}

		transport, err := c.dialer.Dial(sctx, userID)
		if err != nil {
			log.Printf("session: reconnect attempt %d/%d failed: %v", attempt, c.maxReconnectAttempts, err)
			continue
		}
		c.adoptTransport(sctx, transport)
		return
	}

	c.mu.Lock()
	notify := func() {}
	if sctx.Err() == nil {
		notify = c.setStateLocked(StateFailed, c.attempt)
	}
	c.mu.Unlock()
	notify()
}

// setStateLocked records a state transition and returns the deferred
// OnStateChange invocation, to be called after the lock is released.
func (c *Client) setStateLocked(state ConnectionState, attempt int) func() {
	if c.state == state && state != StateReconnecting {
		return func() {}
	}
	c.state = state
	handler := c.handlers.OnStateChange
	if handler == nil {
		return func() {}
	}
	return func() { handler(state, attempt) }
}

// RefreshConversations reloads the conversation list.
func (c *Client) RefreshConversations(ctx context.Context) ([]chattypes.Conversation, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &api.AuthError{Reason: "not logged in", Err: err}
	}
	conversations, err := c.backend.ListConversations(ctx, token)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conversations = conversations
	c.mu.Unlock()
	c.notifyConversationChange()
	return conversations, nil
}

// Conversations returns the cached conversation list.
func (c *Client) Conversations() []chattypes.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chattypes.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// SelectConversation makes peerID the active conversation and fetches its
// history. Selecting a new peer cancels interest in any in-flight fetch:
// a slow response for a previously selected peer is discarded and can
// never overwrite the current timeline.
func (c *Client) SelectConversation(ctx context.Context, peerID string) (*Conversation, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &api.AuthError{Reason: "not logged in", Err: err}
	}

	c.mu.Lock()
	if c.selectCancel != nil {
		c.selectCancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.selectCancel = cancel
	c.selectEpoch++
	epoch := c.selectEpoch

	conversation := &Conversation{PeerID: peerID}
	for _, entry := range c.conversations {
		if entry.PeerID == peerID {
			conversation.ID = entry.ID
			conversation.PeerName = entry.PeerName
			break
		}
	}
	c.active = conversation
	c.mu.Unlock()
	c.notifyConversationChange()

	historyKey := conversation.ID
	if historyKey == "" {
		// No conversation record yet; the backend accepts the peer id.
		historyKey = peerID
	}
	messages, err := c.backend.ListMessages(fetchCtx, token, historyKey, 1, 50)

	c.mu.Lock()
	if epoch != c.selectEpoch {
		// A newer selection won; this response is stale.
		c.mu.Unlock()
		return c.ActiveConversation(), nil
	}
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	for _, msg := range messages {
		conversation.insertIncoming(msg)
	}
	snapshot := snapshotConversation(conversation)
	c.mu.Unlock()
	c.notifyConversationChange()
	return snapshot, nil
}

// ActiveConversation returns a snapshot of the active conversation, or nil
// when no peer is selected.
func (c *Client) ActiveConversation() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return snapshotConversation(c.active)
}

func snapshotConversation(conversation *Conversation) *Conversation {
	out := &Conversation{
		ID:       conversation.ID,
		PeerID:   conversation.PeerID,
		PeerName: conversation.PeerName,
		Typing:   conversation.Typing,
	}
	out.Messages = make([]chattypes.Message, len(conversation.Messages))
	copy(out.Messages, conversation.Messages)
	return out
}

// SendMessage sends text to peerID with an optimistic timeline entry. On
// success the pending entry is replaced by the server record, never
// duplicated. On failure the entry is rolled back and the returned
// *api.SendError carries the original content so the caller can restore
// the input.
func (c *Client) SendMessage(ctx context.Context, peerID, content string) (chattypes.Message, error) {
	return c.send(ctx, peerID, content, chattypes.TextKind, nil, "")
}

// SendFile validates the file against the configured allow-list and size
// caps, then follows the SendMessage contract via the upload endpoint.
// Validation failures are returned before any network call.
func (c *Client) SendFile(ctx context.Context, peerID string, file chattypes.FileRef, caption string) (chattypes.Message, error) {
	kind, err := c.validateFile(file)
	if err != nil {
		return chattypes.Message{}, err
	}
	return c.send(ctx, peerID, caption, kind, &file, file.Name)
}

func (c *Client) send(ctx context.Context, peerID, content string, kind chattypes.MessageKind, file *chattypes.FileRef, fileName string) (chattypes.Message, error) {
	pending := chattypes.Message{
		LocalTempID:   uuid.New().String(),
		SenderID:      c.currentUserID(),
		ReceiverID:    peerID,
		Content:       content,
		Kind:          kind,
		FileName:      fileName,
		DeliveryState: chattypes.PendingState,
		CreatedAt:     time.Now(),
	}
	if file != nil {
		pending.FileSize = file.Size
	}

	c.mu.Lock()
	tracked := c.active != nil && c.active.PeerID == peerID
	if tracked {
		c.active.appendPending(pending)
	}
	c.mu.Unlock()
	if tracked {
		c.notifyConversationChange()
	}

	token, err := c.tokens.Token()
	if err != nil {
		c.rollbackPending(peerID, pending.LocalTempID)
		return chattypes.Message{}, &api.SendError{Content: content, Err: err}
	}

	var confirmed chattypes.Message
	if file != nil {
		confirmed, err = c.backend.UploadFile(ctx, token, peerID, *file, content)
	} else {
		confirmed, err = c.backend.Send(ctx, token, peerID, content, kind)
	}
	if err != nil {
		c.rollbackPending(peerID, pending.LocalTempID)
		if sendErr, ok := err.(*api.SendError); ok {
			return chattypes.Message{}, sendErr
		}
		return chattypes.Message{}, &api.SendError{Content: content, Err: err}
	}

	c.mu.Lock()
	if c.active != nil && c.active.PeerID == peerID {
		c.active.reconcilePending(pending.LocalTempID, confirmed)
	}
	c.updatePreviewLocked(confirmed)
	transport := c.transport
	c.mu.Unlock()
	c.notifyConversationChange()

	// Echo over the realtime channel so the peer sees it without waiting
	// for a poll; best effort, the HTTP send is already authoritative.
	if transport != nil {
		if err := transport.Emit(chattypes.EventSendMessage, confirmed); err != nil {
			log.Printf("session: realtime echo failed: %v", err)
		}
	}
	return confirmed, nil
}

func (c *Client) rollbackPending(peerID, tempID string) {
	c.mu.Lock()
	if c.active != nil && c.active.PeerID == peerID {
		c.active.removePending(tempID)
	}
	c.mu.Unlock()
	c.notifyConversationChange()
}

func (c *Client) validateFile(file chattypes.FileRef) (chattypes.MessageKind, error) {
	const mb = int64(1) << 20
	for _, allowed := range c.uploadRules.AllowedImageTypes {
		if file.MimeType == allowed {
			if file.Size > c.uploadRules.MaxImageSizeMB*mb {
				return "", &ValidationError{Reason: fmt.Sprintf(
					"image exceeds %d MB limit", c.uploadRules.MaxImageSizeMB)}
			}
			return chattypes.ImageKind, nil
		}
	}
	for _, allowed := range c.uploadRules.AllowedDocumentTypes {
		if file.MimeType == allowed {
			if file.Size > c.uploadRules.MaxDocumentSizeMB*mb {
				return "", &ValidationError{Reason: fmt.Sprintf(
					"document exceeds %d MB limit", c.uploadRules.MaxDocumentSizeMB)}
			}
			return chattypes.DocumentKind, nil
		}
	}
	return "", &ValidationError{Reason: fmt.Sprintf("file type %q is not allowed", file.MimeType)}
}

// TypingTo tells the peer whether this user is typing.
func (c *Client) TypingTo(peerID string, typing bool) {
	c.mu.Lock()
	transport := c.transport
	userID := c.userID
	c.mu.Unlock()
	if transport == nil {
		return
	}
	event := chattypes.EventTypingStop
	if typing {
		event = chattypes.EventTypingStart
	}
	payload := chattypes.TypingPayload{UserID: userID, ReceiverID: peerID}
	if err := transport.Emit(event, payload); err != nil {
		log.Printf("session: typing emit failed: %v", err)
	}
}

// IsOnline reports whether userID is in the online set.
func (c *Client) IsOnline(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.online[userID]
	return ok
}

func (c *Client) currentUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID
	}
	return c.tokens.User().ID
}

func (c *Client) updatePreviewLocked(msg chattypes.Message) {
	for i := range c.conversations {
		if (msg.ConversationID != "" && c.conversations[i].ID == msg.ConversationID) ||
			c.conversations[i].PeerID == msg.SenderID ||
			c.conversations[i].PeerID == msg.ReceiverID {
			c.conversations[i].LastMessage = msg.Content
			c.conversations[i].LastMessageAt = msg.CreatedAt
			return
		}
	}

	// First contact with a new peer: grow the sidebar instead of waiting
	// for the next list refresh.
	self := c.userID
	if self == "" {
		self = c.tokens.User().ID
	}
	peerID := msg.SenderID
	if peerID == self {
		peerID = msg.ReceiverID
	}
	if peerID == "" || peerID == self {
		return
	}
	c.conversations = append(c.conversations, chattypes.Conversation{
		ID:            msg.ConversationID,
		PeerID:        peerID,
		LastMessage:   msg.Content,
		LastMessageAt: msg.CreatedAt,
	})
}

func (c *Client) notifyConversationChange() {
	if c.handlers.OnConversationChange != nil {
		c.handlers.OnConversationChange()
	}
}

// handleEvent applies one realtime event. Events are delivered from a
// single goroutine in arrival order, so each one runs to completion
// before the next is processed.
func (c *Client) handleEvent(event chattypes.Event) {
	switch event.Name {
	case chattypes.EventNewMessage:
		var wire chattypes.WireMessage
		if err := json.Unmarshal(event.Data, &wire); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		msg := wire.Normalize()
		c.mu.Lock()
		if c.active != nil && (c.active.PeerID == msg.SenderID || c.active.PeerID == msg.ReceiverID) {
			c.active.insertIncoming(msg)
		}
		c.updatePreviewLocked(msg)
		c.mu.Unlock()
		c.notifyConversationChange()

	case chattypes.EventMessageUpdated:
		var wire chattypes.WireMessage
		if err := json.Unmarshal(event.Data, &wire); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		msg := wire.Normalize()
		c.mu.Lock()
		changed := c.active != nil && c.active.replaceMessage(msg)
		c.mu.Unlock()
		if changed {
			c.notifyConversationChange()
		}

	case chattypes.EventMessageDeleted:
		var payload chattypes.MessageDeletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		c.mu.Lock()
		changed := c.active != nil && c.active.removeMessage(payload.MessageID)
		c.mu.Unlock()
		if changed {
			c.notifyConversationChange()
		}

	case chattypes.EventMessageStatusUpdated:
		var payload chattypes.StatusPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		c.mu.Lock()
		changed := c.active != nil && c.active.applyStatus(payload.MessageID, payload.State())
		c.mu.Unlock()
		if changed {
			c.notifyConversationChange()
		}

	case chattypes.EventUserOnline, chattypes.EventUserOffline:
		var payload chattypes.PresencePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		online := event.Name == chattypes.EventUserOnline
		c.mu.Lock()
		if online {
			c.online[payload.UserID] = struct{}{}
		} else {
			delete(c.online, payload.UserID)
		}
		handler := c.handlers.OnPresence
		c.mu.Unlock()
		if handler != nil {
			handler(payload.UserID, online)
		}

	case chattypes.EventTypingStart, chattypes.EventTypingStop:
		var payload chattypes.TypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("session: malformed %s payload: %v", event.Name, err)
			return
		}
		c.setTyping(payload.UserID, event.Name == chattypes.EventTypingStart)

	default:
		log.Printf("session: unknown event %q", event.Name)
	}
}

// setTyping flips a peer's typing indicator. Every typing_start arms an
// expiry timer so a lost typing_stop cannot leave the indicator stuck.
func (c *Client) setTyping(peerID string, typing bool) {
	c.mu.Lock()
	if timer, ok := c.typingTimers[peerID]; ok {
		timer.Stop()
		delete(c.typingTimers, peerID)
	}
	if typing {
		c.typingTimers[peerID] = time.AfterFunc(c.typingExpiry, func() {
			c.expireTyping(peerID)
		})
	}
	changed := false
	if c.active != nil && c.active.PeerID == peerID && c.active.Typing != typing {
		c.active.Typing = typing
		changed = true
	}
	handler := c.handlers.OnTyping
	c.mu.Unlock()

	if handler != nil {
		handler(peerID, typing)
	}
	if changed {
		c.notifyConversationChange()
	}
}

func (c *Client) expireTyping(peerID string) {
	c.mu.Lock()
	delete(c.typingTimers, peerID)
	changed := false
	if c.active != nil && c.active.PeerID == peerID && c.active.Typing {
		c.active.Typing = false
		changed = true
	}
	handler := c.handlers.OnTyping
	c.mu.Unlock()

	if handler != nil {
		handler(peerID, false)
	}
	if changed {
		c.notifyConversationChange()
	}
}
