package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"daymoon-client/internal/auth"
	"daymoon-client/internal/config"
)

type testEnv struct {
	server *httptest.Server
	store  *store
	hub    *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := openStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := NewHub()
	go hub.Run()

	stubCfg := config.StubServerConfig{
		UploadPath:   dir,
		JWTSecretKey: "handlers-test-secret",
		JWTExpiry:    time.Hour,
	}
	h := &apiHandler{
		store:     st,
		hub:       hub,
		blacklist: auth.NewMemoryTokenBlacklist(),
		cfg:       stubCfg,
		upload: config.UploadConfig{
			AllowedImageTypes:    []string{"image/png"},
			AllowedDocumentTypes: []string{"application/pdf"},
			MaxImageSizeMB:       5,
			MaxDocumentSizeMB:    20,
		},
	}

	server := httptest.NewServer(newRouter(h, hub, st, config.RealtimeConfig{
		WriteWait:           time.Second,
		PongWait:            5 * time.Second,
		PingPeriod:          4 * time.Second,
		MaxMessageSizeBytes: 64 * 1024,
	}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, hub: hub}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func (e *testEnv) createAndLogin(t *testing.T, name, email string) (string, string) {
	t.Helper()
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := e.store.CreateUser(name, email, hash)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	resp, env := e.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "pw",
	})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login failed: %d %s", resp.StatusCode, env.Message)
	}
	data, _ := json.Marshal(env.Data)
	var payload struct {
		Token string `json:"token"`
	}
	json.Unmarshal(data, &payload)
	if payload.Token == "" {
		t.Fatalf("no token in login response: %v", env.Data)
	}
	return user.ID, payload.Token
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	hash, _ := auth.HashPassword("right")
	env.store.CreateUser("Alice", "alice@example.com", hash)

	resp, body := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized || body.Success {
		t.Fatalf("expected 401 failure, got %d %+v", resp.StatusCode, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.request(t, http.MethodGet, "/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodGet, "/chat/conversations", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a garbage token, got %d", resp.StatusCode)
	}
}

func TestMeReturnsAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.createAndLogin(t, "Alice", "alice@example.com")

	resp, body := env.request(t, http.MethodGet, "/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("me failed: %d %s", resp.StatusCode, body.Message)
	}
	data, _ := json.Marshal(body.Data)
	var user struct {
		ID string `json:"id"`
	}
	json.Unmarshal(data, &user)
	if user.ID != userID {
		t.Fatalf("expected %s, got %+v", userID, user)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAndLogin(t, "Alice", "alice@example.com")

	resp, _ := env.request(t, http.MethodPost, "/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed: %d", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodGet, "/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", resp.StatusCode)
	}
}

func TestSendAndFetchMessages(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.createAndLogin(t, "Alice", "alice@example.com")
	bobID, bobToken := env.createAndLogin(t, "Bob", "bob@example.com")

	resp, body := env.request(t, http.MethodPost, "/chat/messages/send", aliceToken, map[string]string{
		"receiverId": bobID, "content": "hello bob", "messageType": "TEXT",
	})
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("send failed: %d %s", resp.StatusCode, body.Message)
	}
	data, _ := json.Marshal(body.Data)
	var sent struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		ConversationID string `json:"conversationId"`
	}
	json.Unmarshal(data, &sent)
	if sent.ID == "" || sent.Status != "sent" {
		t.Fatalf("unexpected send response: %+v", sent)
	}

	// Bob opening the conversation returns the history and marks it read.
	resp, body = env.request(t, http.MethodPost, "/chat/messages", bobToken, map[string]interface{}{
		"conversationId": sent.ConversationID, "page": 1, "limit": 50,
	})
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("messages failed: %d %s", resp.StatusCode, body.Message)
	}
	data, _ = json.Marshal(body.Data)
	var page struct {
		Messages []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"messages"`
	}
	json.Unmarshal(data, &page)
	if len(page.Messages) != 1 || page.Messages[0].ID != sent.ID {
		t.Fatalf("unexpected history: %+v", page)
	}
	if page.Messages[0].Status != "read" {
		t.Fatalf("opening the conversation should mark it read, got %s", page.Messages[0].Status)
	}

	// Alice's sidebar now shows the conversation with Bob.
	resp, body = env.request(t, http.MethodGet, "/chat/conversations", aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("conversations failed: %d", resp.StatusCode)
	}
	data, _ = json.Marshal(body.Data)
	var conversations []struct {
		OtherUser struct {
			ID string `json:"id"`
		} `json:"otherUser"`
		LastMessage string `json:"lastMessage"`
	}
	json.Unmarshal(data, &conversations)
	if len(conversations) != 1 || conversations[0].OtherUser.ID != bobID {
		t.Fatalf("unexpected sidebar: %+v", conversations)
	}
	if conversations[0].LastMessage != "hello bob" {
		t.Fatalf("preview wrong: %+v", conversations[0])
	}
}

func TestSendRejectsUnknownReceiver(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createAndLogin(t, "Alice", "alice@example.com")

	resp, _ := env.request(t, http.MethodPost, "/chat/messages/send", token, map[string]string{
		"receiverId": "ghost", "content": "anyone there",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown receiver, got %d", resp.StatusCode)
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	env := newTestEnv(t)
	aliceID, token := env.createAndLogin(t, "Alice", "alice@example.com")

	resp, _ := env.request(t, http.MethodPost, "/chat/messages/send", token, map[string]string{
		"receiverId": aliceID, "content": "   ",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", resp.StatusCode)
	}
}
