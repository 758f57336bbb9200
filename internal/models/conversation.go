package models

import "time"

// Role identifies the author of a message. The store only accepts the two
// values below; anything else is rejected with a constraint violation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is one chat session. The id is an opaque string chosen by the
// caller (a UUID for web clients, the chat id for Telegram) and is immutable
// once created.
type Conversation struct {
	ID        string    `json:"conversation_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a conversation. A message belongs to exactly one
// conversation and is removed with it.
type Message struct {
	ID        int64     `json:"id"`
	ConvID    string    `json:"conversation_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
