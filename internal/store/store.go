// Package store persists conversations and their messages in SQLite.
//
// A conversation exclusively owns its messages: the foreign key cascades on
// delete, and a message can never be inserted for a conversation that does
// not exist. Roles are constrained to {user, assistant} at the schema level.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/memobot-ai/memobot/internal/models"
)

var (
	// ErrConversationExists is returned when creating a conversation whose
	// id is already taken.
	ErrConversationExists = errors.New("conversation already exists")

	// ErrConversationNotFound is returned when a conversation id does not
	// resolve to a row, including appends that would orphan a message.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidRole is returned when a message role is outside {user, assistant}.
	ErrInvalidRole = errors.New("invalid message role")
)

// Timestamps use millisecond precision so updated_at comparisons are
// meaningful within a single request.
const sqliteNow = `strftime('%Y-%m-%d %H:%M:%f','now')`

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT (` + sqliteNow + `),
    updated_at TIMESTAMP NOT NULL DEFAULT (` + sqliteNow + `)
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user','assistant')),
    content TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL DEFAULT (` + sqliteNow + `)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

-- SQLite has no ON UPDATE clause, so updated_at is refreshed by trigger.
-- The WHEN guard skips rows whose updated_at was set explicitly (Touch).
CREATE TRIGGER IF NOT EXISTS conversations_touch
AFTER UPDATE ON conversations
FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
    UPDATE conversations SET updated_at = ` + sqliteNow + `
    WHERE conversation_id = NEW.conversation_id;
END;`

// titleLimit is the number of characters of the first user message kept as
// the conversation title before truncation.
const titleLimit = 50

type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a conversation with the given id. The id is
// immutable once created; reusing one fails with ErrConversationExists.
func (s *Store) CreateConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id, Title: title}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO conversations (conversation_id, title)
        VALUES (?, ?)
        RETURNING created_at, updated_at`, id, title).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return conv, nil
}

// NewConversation creates a conversation under a fresh UUID.
func (s *Store) NewConversation(ctx context.Context, title string) (*models.Conversation, error) {
	return s.CreateConversation(ctx, uuid.NewString(), title)
}

// EnsureConversation creates the conversation if it does not exist yet.
// Callers that mint conversation ids client-side (the web UI, Telegram chat
// ids) rely on this lazy create when the first message arrives.
func (s *Store) EnsureConversation(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO conversations (conversation_id, title)
        VALUES (?, ?)`, id, title)
	if err != nil {
		return fmt.Errorf("ensuring conversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation or ErrConversationNotFound.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
        SELECT conversation_id, title, created_at, updated_at
        FROM conversations
        WHERE conversation_id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations holding at least one message,
// most recently updated first. Empty conversations (created but never
// written to) are hidden from history.
func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT DISTINCT c.conversation_id, c.title, c.created_at, c.updated_at
        FROM conversations c
        JOIN messages m ON c.conversation_id = m.conversation_id
        ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes the conversation and, via cascade, all its
// messages. Returns ErrConversationNotFound when no row was deleted.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE conversation_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Touch refreshes the conversation's updated_at timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE conversations SET updated_at = `+sqliteNow+`
        WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// UpdateConversationTitle renames the conversation. The touch trigger
// refreshes updated_at as a side effect.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ? WHERE conversation_id = ?", title, id)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AppendMessage inserts a message with a server-assigned id and timestamp,
// refreshes the conversation's updated_at, and, when this is the very first
// user message, promotes its content to the conversation title.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO messages (conversation_id, role, content)
        VALUES (?, ?, ?)
        RETURNING id, timestamp`, msg.ConvID, msg.Role, msg.Content).
		Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return mapSQLiteError(err)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE conversations SET updated_at = `+sqliteNow+`
        WHERE conversation_id = ?`, msg.ConvID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	if msg.Role == models.RoleUser {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM messages WHERE conversation_id = ?",
			msg.ConvID).Scan(&count); err != nil {
			return fmt.Errorf("counting messages: %w", err)
		}
		if count == 1 {
			if _, err := tx.ExecContext(ctx,
				"UPDATE conversations SET title = ? WHERE conversation_id = ?",
				titleFor(msg.Content), msg.ConvID); err != nil {
				return fmt.Errorf("setting title: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListMessages returns the conversation's messages oldest first. A non-zero
// afterID restricts the result to messages inserted after that id, which
// makes polling restartable without duplicates.
func (s *Store) ListMessages(ctx context.Context, convID string, afterID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, timestamp
        FROM messages
        WHERE conversation_id = ? AND id > ?
        ORDER BY id ASC`, convID, afterID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func titleFor(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "..."
}

// mapSQLiteError translates sqlite constraint codes into the store's
// sentinel errors so callers never match on driver types.
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %v", ErrConversationExists, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", ErrConversationNotFound, err)
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	return err
}
