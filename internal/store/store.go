// Package store is the persistence collaborator for the chat core. It owns
// users, sessions, chats, members, and messages. Callers are responsible for
// authorization checks; the store persists what it is told to persist.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/switchboardhq/switchboard/internal/cherr"
	"github.com/switchboardhq/switchboard/internal/safedb"
	"github.com/switchboardhq/switchboard/internal/schema"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store provides durable chat state backed by SQLite.
type Store struct {
	db *safedb.DB
}

// Message is one persisted chat message. Model is non-empty only for
// assistant messages.
type Message struct {
	ID          string
	ChatID      string
	UserID      string
	Content     string
	Role        string
	Model       string
	MessageType string
	CreatedAt   string
}

// User is a registered account.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   string
}

// Session is a bearer credential.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Chat is a conversation header; messages and members hang off it.
type Chat struct {
	ID        string
	Title     string
	CreatedBy string
	CreatedAt string
}

// Open opens (and initializes if needed) the store at path.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := schema.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := schema.InitDB(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: safedb.New(db)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns a fresh ULID string. Used for every public identifier.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateUser registers a user and returns it.
func (s *Store) CreateUser(ctx context.Context, email, displayName string) (User, error) {
	u := User{ID: NewID(), Email: email, DisplayName: displayName, CreatedAt: now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserByID fetches one user.
func (s *Store) UserByID(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, display_name, created_at FROM users WHERE user_id = ?`,
		userID).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, cherr.New(cherr.NotFound, "user %s not found", userID)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// CreateSession mints a bearer credential for the user.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	sess := Session{
		Token:     NewID(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.ExpiresAt.Format(time.RFC3339Nano), now())
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// SessionByToken looks up a session. Missing tokens are NotFound; the
// authenticator maps that (and expiry) to Unauthorized.
func (s *Store) SessionByToken(ctx context.Context, token string) (Session, error) {
	var sess Session
	var expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at FROM sessions WHERE token = ?`,
		token).Scan(&sess.Token, &sess.UserID, &expires)
	if err == sql.ErrNoRows {
		return Session{}, cherr.New(cherr.NotFound, "session not found")
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expires)
	if err != nil {
		return Session{}, fmt.Errorf("parse session expiry: %w", err)
	}
	return sess, nil
}

// DeleteSession revokes a credential. Idempotent.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateChat creates a chat with the creator as its first member.
func (s *Store) CreateChat(ctx context.Context, title, createdBy string) (Chat, error) {
	c := Chat{ID: NewID(), Title: title, CreatedBy: createdBy, CreatedAt: now()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chats (chat_id, title, created_by, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role, joined_at) VALUES (?, ?, 'owner', ?)`,
		c.ID, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert owner member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Chat{}, fmt.Errorf("commit transaction: %w", err)
	}
	return c, nil
}

// AddMember adds a user to a chat. Idempotent.
func (s *Store) AddMember(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_members (chat_id, user_id, role, joined_at) VALUES (?, ?, 'member', ?)`,
		chatID, userID, now())
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsMember reports whether userID belongs to chatID. A nonexistent chat has
// no members, so it reports false.
func (s *Store) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?)`,
		chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// MembersOf returns the user ids of a chat's members.
func (s *Store) MembersOf(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY joined_at`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// ChatsForUser lists the chats a user belongs to, newest first.
func (s *Store) ChatsForUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.chat_id, c.title, c.created_by, c.created_at
		 FROM chats c
		 JOIN chat_members cm ON c.chat_id = cm.chat_id
		 WHERE cm.user_id = ?
		 ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// PersistMessage durably stores one message and returns it with its assigned
// id and timestamp. model may be empty (user messages). The message is
// durable when this returns; broadcast must not happen before that.
func (s *Store) PersistMessage(ctx context.Context, chatID, userID, content, role, model, messageType string) (Message, error) {
	if messageType == "" {
		messageType = "text"
	}
	m := Message{
		ID:          NewID(),
		ChatID:      chatID,
		UserID:      userID,
		Content:     content,
		Role:        role,
		Model:       model,
		MessageType: messageType,
		CreatedAt:   now(),
	}

	var modelArg any
	if model != "" {
		modelArg = model
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, chat_id, user_id, content, role, model, message_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.UserID, m.Content, m.Role, modelArg, m.MessageType, m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Messages returns a chat's messages in creation order.
func (s *Store) Messages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, chat_id, user_id, content, role, model, message_type, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var m Message
		var model sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Content, &m.Role, &model, &m.MessageType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if model.Valid {
			m.Model = model.String
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
