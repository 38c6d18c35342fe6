package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(config.APIConfig{BaseURL: server.URL, RequestTimeout: 5 * time.Second})
	return client, server
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func TestLoginUnwrapsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "alice@example.com" || body["password"] != "secret" {
			t.Errorf("credentials not forwarded: %v", body)
		}
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]interface{}{
			"token":      "tok123",
			"userExists": map[string]string{"id": "u1", "name": "Alice", "email": "alice@example.com"},
		})
	}))

	result, err := client.Login(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.Token != "tok123" || result.User.ID != "u1" || result.User.Name != "Alice" {
		t.Fatalf("unexpected login result: %+v", result)
	}
}

func TestLoginAcceptsOlderUserField(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]interface{}{
			"token": "tok123",
			"user":  map[string]string{"id": "u1", "name": "Alice"},
		})
	}))

	result, err := client.Login(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.User.ID != "u1" {
		t.Fatalf("older user field not accepted: %+v", result.User)
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "invalid email or password", nil)
	}))

	_, err := client.Login(context.Background(), "a@example.com", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid email or password") {
		t.Fatalf("server message lost: %v", err)
	}
}

func TestExpiredTokenSurfacesAuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "invalid token", nil)
	}))

	// A rejected credential on a history or send endpoint is an auth
	// failure, not a fetch or send failure.
	_, err := client.ListMessages(context.Background(), "stale-token", "a:b", 1, 50)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for 401 history load, got %v", err)
	}
	if authErr.Reason != "invalid token" {
		t.Fatalf("server reason lost: %q", authErr.Reason)
	}

	_, err = client.Send(context.Background(), "stale-token", "peer", "hi", chattypes.TextKind)
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for 401 send, got %v", err)
	}
	// The send wrapper still carries the content for input restore.
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Content != "hi" {
		t.Fatalf("send wrapper lost the content: %v", err)
	}
}

func TestListMessagesSendsPageAndNormalizes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["conversationId"] != "c1" || body["page"] != float64(2) || body["limit"] != float64(25) {
			t.Errorf("pagination not forwarded: %v", body)
		}
		writeEnvelope(w, http.StatusOK, true, "", map[string]interface{}{
			"messages": []map[string]interface{}{
				{"_id": "m1", "from": "u2", "to": "u1", "text": "hey", "isRead": true,
					"createdAt": "2025-03-01T10:00:00Z"},
			},
		})
	}))

	messages, err := client.ListMessages(context.Background(), "tok", "c1", 2, 25)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[0].Content != "hey" || messages[0].DeliveryState != chattypes.ReadState {
		t.Fatalf("legacy shape not normalized: %+v", messages[0])
	}
}

func TestSendReturnsSendErrorWithContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, false, "database down", nil)
	}))

	_, err := client.Send(context.Background(), "tok", "u2", "important text", chattypes.TextKind)
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if sendErr.Content != "important text" {
		t.Fatalf("content for input restore lost: %q", sendErr.Content)
	}
}

func TestSendForwardsMessageType(t *testing.T) {
	var gotType string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotType = body["messageType"]
		writeEnvelope(w, http.StatusOK, true, "", map[string]interface{}{
			"id": "m1", "senderId": "u1", "receiverId": "u2",
			"content": "x", "messageType": gotType, "status": "sent",
			"createdAt": "2025-03-01T10:00:00Z",
		})
	}))

	msg, err := client.Send(context.Background(), "tok", "u2", "x", chattypes.ImageKind)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotType != "IMAGE" {
		t.Fatalf("expected messageType IMAGE, got %q", gotType)
	}
	if msg.Kind != chattypes.ImageKind {
		t.Fatalf("kind not round-tripped: %s", msg.Kind)
	}
}

func TestUploadFileBuildsMultipart(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not a multipart request: %v", err)
		}
		if r.FormValue("receiverId") != "u2" || r.FormValue("caption") != "look" {
			t.Errorf("form fields missing: %v", r.MultipartForm.Value)
		}
		if r.FormValue("fileType") != "IMAGE" {
			t.Errorf("image mime should map to fileType IMAGE, got %q", r.FormValue("fileType"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "cat.png" {
			t.Errorf("filename lost: %q", header.Filename)
		}
		writeEnvelope(w, http.StatusOK, true, "", map[string]interface{}{
			"id": "m1", "senderId": "u1", "receiverId": "u2",
			"content": "look", "messageType": "IMAGE",
			"fileUrl": "/uploads/x.png", "fileName": "cat.png",
			"status": "sent", "createdAt": "2025-03-01T10:00:00Z",
		})
	}))

	msg, err := client.UploadFile(context.Background(), "tok", "u2", chattypes.FileRef{
		Name:     "cat.png",
		MimeType: "image/png",
		Size:     4,
		Reader:   strings.NewReader("data"),
	}, "look")
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if msg.Kind != chattypes.ImageKind || msg.FileURL != "/uploads/x.png" {
		t.Fatalf("upload response not normalized: %+v", msg)
	}
}

func TestConversationsNormalized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", []map[string]interface{}{
			{
				"id":            "c1",
				"otherUser":     map[string]string{"id": "u2", "name": "Bob"},
				"lastMessage":   "later",
				"lastMessageAt": "2025-03-01T10:00:00Z",
			},
		})
	}))

	conversations, err := client.ListConversations(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(conversations) != 1 || conversations[0].PeerID != "u2" || conversations[0].PeerName != "Bob" {
		t.Fatalf("unexpected conversations: %+v", conversations)
	}
}

func TestEnvelopeFailureWithOKStatus(t *testing.T) {
	// success:false must be an error even when HTTP says 200.
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, false, "backend said no", nil)
	}))

	_, err := client.ListConversations(context.Background(), "tok")
	if err == nil || !strings.Contains(err.Error(), "backend said no") {
		t.Fatalf("expected the envelope failure to surface, got %v", err)
	}
}
