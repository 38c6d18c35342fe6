package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"daymoon-client/internal/auth"
	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/config"
)

// response is the envelope every endpoint answers with.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response{Success: true, Message: message, Data: data}); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response{Success: false, Message: message}); err != nil {
		log.Printf("encode error response: %v", err)
	}
}

// apiHandler carries the dependencies the REST endpoints need.
type apiHandler struct {
	store     *store
	hub       *Hub
	blacklist auth.TokenBlacklist
	cfg       config.StubServerConfig
	upload    config.UploadConfig
}

// Login authenticates a user by email and password and issues a JWT.
// POST /auth/login.
func (h *apiHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(req.Email)
	if errors.Is(err, errNotFound) {
		writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Name, h.cfg.JWTSecretKey, h.cfg.JWTExpiry)
	if err != nil {
		log.Printf("issue token for %s: %v", user.ID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, "login successful", map[string]interface{}{
		"token":      token,
		"userExists": chattypes.UserInfo{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// Me returns the authenticated user. GET /auth/me.
func (h *apiHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.store.GetUserByID(userID)
	if err != nil {
		writeJSONError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", chattypes.UserInfo{ID: user.ID, Name: user.Name, Email: user.Email})
}

// Logout revokes the caller's token by blacklisting its jti until the
// token would have expired anyway. POST /auth/logout.
func (h *apiHandler) Logout(w http.ResponseWriter, r *http.Request) {
	jti, _ := r.Context().Value(tokenJTIKey).(string)
	exp, _ := r.Context().Value(tokenExpKey).(time.Time)
	if jti == "" {
		writeJSONError(w, "token has no jti claim", http.StatusBadRequest)
		return
	}
	if err := h.blacklist.Add(r.Context(), jti, exp); err != nil {
		log.Printf("blacklist token %s: %v", jti, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "logged out", nil)
}

// Conversations returns the caller's conversation sidebar.
// GET /chat/conversations.
func (h *apiHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversations, err := h.store.ListConversations(userID)
	if err != nil {
		log.Printf("list conversations for %s: %v", userID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", conversations)
}

// Messages returns one page of a conversation's history, oldest first,
// and marks the page's inbound messages as read. POST /chat/messages.
func (h *apiHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ConversationID string `json:"conversationId"`
		Page           int    `json:"page"`
		Limit          int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		writeJSONError(w, "conversationId required", http.StatusBadRequest)
		return
	}

	// Opening a conversation reads it. Tell the peer their messages were
	// seen before returning the history so the page reflects the change.
	readIDs, err := h.store.MarkConversationRead(req.ConversationID, userID)
	if err != nil {
		log.Printf("mark conversation %s read: %v", req.ConversationID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if peerID := conversationPeer(req.ConversationID, userID); peerID != "" {
		for _, id := range readIDs {
			h.hub.SendToUser(peerID, chattypes.EventMessageStatusUpdated, chattypes.StatusPayload{
				MessageID: id,
				Status:    string(chattypes.ReadState),
			})
		}
	}

	messages, err := h.store.ListMessages(req.ConversationID, req.Page, req.Limit)
	if err != nil {
		log.Printf("list messages for %s: %v", req.ConversationID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", map[string]interface{}{"messages": messages})
}

// Send persists a text message and returns the confirmed record. The
// realtime fan-out happens when the sender echoes it over the socket.
// POST /chat/messages/send.
func (h *apiHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ReceiverID  string `json:"receiverId"`
		Content     string `json:"content"`
		MessageType string `json:"messageType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReceiverID == "" {
		writeJSONError(w, "receiverId required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, "content required", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUserByID(req.ReceiverID); err != nil {
		writeJSONError(w, "unknown receiver", http.StatusNotFound)
		return
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = "TEXT"
	}

	msg, err := h.store.SaveMessage(userID, req.ReceiverID, req.Content, messageType, "", "", 0)
	if err != nil {
		log.Printf("save message from %s: %v", userID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "message sent", msg)
}

// Upload accepts a multipart file upload, stores the file under the
// upload directory and persists a file message. POST /chat/upload.
func (h *apiHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	maxBytes := int64(h.upload.MaxDocumentSizeMB) << 20
	if imageMax := int64(h.upload.MaxImageSizeMB) << 20; imageMax > maxBytes {
		maxBytes = imageMax
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeJSONError(w, "file too large or malformed form", http.StatusBadRequest)
		return
	}

	receiverID := r.FormValue("receiverId")
	if receiverID == "" {
		writeJSONError(w, "receiverId required", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUserByID(receiverID); err != nil {
		writeJSONError(w, "unknown receiver", http.StatusNotFound)
		return
	}
	fileType := strings.ToUpper(r.FormValue("fileType"))
	if fileType == "" {
		fileType = "PDF"
	}
	caption := r.FormValue("caption")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	limit := int64(h.upload.MaxDocumentSizeMB) << 20
	if fileType == "IMAGE" {
		limit = int64(h.upload.MaxImageSizeMB) << 20
	}
	if header.Size > limit {
		writeJSONError(w, fmt.Sprintf("file exceeds %d MB limit", limit>>20), http.StatusBadRequest)
		return
	}

	storedName := uuid.New().String() + filepath.Ext(header.Filename)
	destPath := filepath.Join(h.cfg.UploadPath, storedName)
	dest, err := os.Create(destPath)
	if err != nil {
		log.Printf("create upload file %s: %v", destPath, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer dest.Close()
	if _, err := io.Copy(dest, file); err != nil {
		log.Printf("write upload file %s: %v", destPath, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	msg, err := h.store.SaveMessage(userID, receiverID, caption, fileType,
		"/uploads/"+storedName, header.Filename, header.Size)
	if err != nil {
		log.Printf("save file message from %s: %v", userID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "file uploaded", msg)
}

// conversationPeer extracts the other participant from a pair-derived
// conversation id.
func conversationPeer(convID, userID string) string {
	parts := strings.SplitN(convID, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	if parts[0] == userID {
		return parts[1]
	}
	if parts[1] == userID {
		return parts[0]
	}
	return ""
}
