package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"
)

// Client talks to the backend's REST surface: authentication, message
// history and message sending. Every response passes through the
// chattypes wire adapter before it is returned.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a REST client from configuration.
func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// envelope is the response wrapper every backend endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LoginResult carries the credentials returned by a successful login.
type LoginResult struct {
	Token string
	User  chattypes.UserInfo
}

// Login authenticates with email and password. POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	data, err := c.do(ctx, http.MethodPost, "/auth/login", "", body)
	if err != nil {
		return nil, &AuthError{Reason: "login failed", Err: err}
	}

	var payload struct {
		Token      string              `json:"token"`
		UserExists chattypes.UserInfo  `json:"userExists"`
		User       *chattypes.UserInfo `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &AuthError{Reason: "malformed login response", Err: err}
	}

	result := &LoginResult{Token: payload.Token, User: payload.UserExists}
	// Older deployments return "user" instead of "userExists".
	if result.User.ID == "" && payload.User != nil {
		result.User = *payload.User
	}
	if result.Token == "" {
		return nil, &AuthError{Reason: "login response carries no token"}
	}
	return result, nil
}

// Me returns the user the token belongs to. GET /auth/me.
func (c *Client) Me(ctx context.Context, token string) (chattypes.UserInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return chattypes.UserInfo{}, &AuthError{Reason: "token rejected", Err: err}
	}
	var user chattypes.UserInfo
	if err := json.Unmarshal(data, &user); err != nil {
		return chattypes.UserInfo{}, &AuthError{Reason: "malformed user response", Err: err}
	}
	return user, nil
}

// Logout invalidates the token server-side. POST /auth/logout.
func (c *Client) Logout(ctx context.Context, token string) error {
	if _, err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil); err != nil {
		return &AuthError{Reason: "logout failed", Err: err}
	}
	return nil
}

// ListConversations returns the conversation sidebar entries.
// GET /chat/conversations.
func (c *Client) ListConversations(ctx context.Context, token string) ([]chattypes.Conversation, error) {
	data, err := c.do(ctx, http.MethodGet, "/chat/conversations", token, nil)
	if err != nil {
		return nil, &FetchError{Op: "conversations", Err: err}
	}
	var wire []chattypes.WireConversation
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &FetchError{Op: "conversations", Err: err}
	}
	conversations := make([]chattypes.Conversation, 0, len(wire))
	for i := range wire {
		conversations = append(conversations, wire[i].Normalize())
	}
	return conversations, nil
}

// ListMessages returns a page of message history for a conversation,
// oldest first. POST /chat/messages.
func (c *Client) ListMessages(ctx context.Context, token, conversationID string, page, limit int) ([]chattypes.Message, error) {
	body := map[string]interface{}{"conversationId": conversationID, "page": page, "limit": limit}
	data, err := c.do(ctx, http.MethodPost, "/chat/messages", token, body)
	if err != nil {
		return nil, &FetchError{Op: "messages", Err: err}
	}
	var payload struct {
		Messages []chattypes.WireMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &FetchError{Op: "messages", Err: err}
	}
	messages := make([]chattypes.Message, 0, len(payload.Messages))
	for i := range payload.Messages {
		messages = append(messages, payload.Messages[i].Normalize())
	}
	return messages, nil
}

// Send posts a message to a peer and returns the server-confirmed record.
// POST /chat/messages/send.
func (c *Client) Send(ctx context.Context, token, receiverID, content string, kind chattypes.MessageKind) (chattypes.Message, error) {
	body := map[string]string{
		"receiverId":  receiverID,
		"content":     content,
		"messageType": chattypes.KindToWire(kind),
	}
	data, err := c.do(ctx, http.MethodPost, "/chat/messages/send", token, body)
	if err != nil {
		return chattypes.Message{}, &SendError{Content: content, Err: err}
	}
	var wire chattypes.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return chattypes.Message{}, &SendError{Content: content, Err: err}
	}
	return wire.Normalize(), nil
}

// UploadFile sends a file message via multipart upload and returns the
// server-confirmed record. POST /chat/upload.
func (c *Client) UploadFile(ctx context.Context, token, receiverID string, file chattypes.FileRef, caption string) (chattypes.Message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", file.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}

	fileType := "PDF"
	if strings.HasPrefix(file.MimeType, "image/") {
		fileType = "IMAGE"
	}
	fields := map[string]string{
		"receiverId": receiverID,
		"fileType":   fileType,
		"caption":    caption,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return chattypes.Message{}, &SendError{Content: caption, Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/upload", &buf)
	if err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	data, err := c.roundTrip(req)
	if err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}
	var wire chattypes.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return chattypes.Message{}, &SendError{Content: caption, Err: err}
	}
	return wire.Normalize(), nil
}

// do issues a JSON request and unwraps the response envelope.
func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.roundTrip(req)
}

func (c *Client) roundTrip(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("status %d: malformed response", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		reason := env.Message
		if reason == "" {
			reason = "unauthorized"
		}
		return nil, &AuthError{Reason: reason}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return env.Data, nil
}
