package main

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"daymoon-client/internal/chattypes"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var errNotFound = errors.New("not found")

// userRecord is a row in the users table.
type userRecord struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

// store persists users and messages in sqlite. One writer at a time is
// fine for a development stub; WAL keeps readers out of its way.
type store struct {
	conn *sql.DB
}

func openStore(path string) (*store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	s := &store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) Close() error {
	return s.conn.Close()
}

func (s *store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'TEXT',
			file_url TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			file_size INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'sent',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, status)`,
	}
	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// conversationID derives a stable identifier for a user pair. Private
// conversations only, so the sorted pair is the identity.
func conversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

func (s *store) CreateUser(name, email, passwordHash string) (userRecord, error) {
	user := userRecord{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}
	_, err := s.conn.Exec(
		`INSERT INTO users (id, name, email, password_hash) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash)
	if err != nil {
		return userRecord{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *store) GetUserByEmail(email string) (userRecord, error) {
	var user userRecord
	err := s.conn.QueryRow(
		`SELECT id, name, email, password_hash FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return userRecord{}, errNotFound
	}
	return user, err
}

func (s *store) GetUserByID(id string) (userRecord, error) {
	var user userRecord
	err := s.conn.QueryRow(
		`SELECT id, name, email, password_hash FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return userRecord{}, errNotFound
	}
	return user, err
}

// SaveMessage inserts a confirmed message and returns it with its server
// identity filled in.
func (s *store) SaveMessage(senderID, receiverID, content, messageType, fileURL, fileName string, fileSize int64) (chattypes.WireMessage, error) {
	msg := chattypes.WireMessage{
		ID:             uuid.New().String(),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		MessageType:    messageType,
		FileURL:        fileURL,
		FileName:       fileName,
		FileSize:       fileSize,
		Status:         "sent",
		// Nanosecond precision keeps ordering stable for messages saved
		// within the same second.
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		ConversationID: conversationID(senderID, receiverID),
	}
	_, err := s.conn.Exec(
		`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content,
			message_type, file_url, file_name, file_size, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content,
		msg.MessageType, msg.FileURL, msg.FileName, msg.FileSize, msg.Status, msg.CreatedAt)
	if err != nil {
		return chattypes.WireMessage{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// ListMessages returns one page of a conversation, oldest first.
func (s *store) ListMessages(convID string, page, limit int) ([]chattypes.WireMessage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(
		`SELECT id, conversation_id, sender_id, receiver_id, content,
			message_type, file_url, file_name, file_size, status, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		convID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chattypes.WireMessage
	for rows.Next() {
		var msg chattypes.WireMessage
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.MessageType, &msg.FileURL, &msg.FileName, &msg.FileSize,
			&msg.Status, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListConversations returns the conversation sidebar for a user: one entry
// per peer, with the latest message as preview.
func (s *store) ListConversations(userID string) ([]chattypes.WireConversation, error) {
	rows, err := s.conn.Query(
		`SELECT m.conversation_id, m.sender_id, m.receiver_id, m.content, m.created_at
		 FROM messages m
		 INNER JOIN (
			SELECT conversation_id, MAX(created_at) AS latest
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY conversation_id
		 ) last ON last.conversation_id = m.conversation_id AND last.latest = m.created_at
		 ORDER BY m.created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []chattypes.WireConversation{}
	for rows.Next() {
		var convID, senderID, receiverID, content, createdAt string
		if err := rows.Scan(&convID, &senderID, &receiverID, &content, &createdAt); err != nil {
			return nil, err
		}
		peerID := senderID
		if peerID == userID {
			peerID = receiverID
		}
		peer, err := s.GetUserByID(peerID)
		if err != nil && !errors.Is(err, errNotFound) {
			return nil, err
		}
		conv := chattypes.WireConversation{
			ID:            convID,
			LastMessage:   content,
			LastMessageAt: createdAt,
		}
		conv.OtherUser.ID = peerID
		conv.OtherUser.Name = peer.Name
		conv.OtherUser.Email = peer.Email
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// MarkDelivered advances a message to delivered unless it is already read.
func (s *store) MarkDelivered(messageID string) error {
	_, err := s.conn.Exec(
		`UPDATE messages SET status = 'delivered' WHERE id = ? AND status = 'sent'`, messageID)
	return err
}

// MarkConversationRead marks every message addressed to readerID in the
// conversation as read and returns the ids that changed, so status events
// can be pushed to the senders.
func (s *store) MarkConversationRead(convID, readerID string) ([]string, error) {
	rows, err := s.conn.Query(
		`SELECT id FROM messages
		 WHERE conversation_id = ? AND receiver_id = ? AND status != 'read'`,
		convID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = s.conn.Exec(
		`UPDATE messages SET status = 'read'
		 WHERE conversation_id = ? AND receiver_id = ? AND status != 'read'`,
		convID, readerID)
	return ids, err
}
