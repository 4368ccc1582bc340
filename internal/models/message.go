package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeletionPlaceholder replaces the content of soft-deleted messages.
const DeletionPlaceholder = "This message has been deleted"

// MessageTypeText is the only message type the core produces.
const MessageTypeText = "text"

// Metadata is the free-form JSONB payload attached to a message
// (file descriptors, bot markers).
type Metadata map[string]any

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("metadata: unsupported scan source")
	}
}

// Message is the canonical message row. Joined sender fields are populated
// by the repository projection, not stored on the row itself.
type Message struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ChannelID    uuid.UUID  `db:"channel_id" json:"channel_id"`
	SenderID     uuid.UUID  `db:"sender_id" json:"sender_id"`
	Content      string     `db:"content" json:"content"`
	Type         string     `db:"type" json:"type"`
	ThreadID     *uuid.UUID `db:"thread_id" json:"thread_id,omitempty"`
	ReplyingToID *uuid.UUID `db:"replying_to_id" json:"replying_to_id,omitempty"`
	Metadata     Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	SenderName string `db:"sender_name" json:"sender_name,omitempty"`
}

// IsDeleted reports whether the message carries a soft-delete marker.
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// InThread reports whether the message belongs to a thread.
func (m Message) InThread() bool {
	return m.ThreadID != nil
}

// IsCommandResponse reports whether the message was inserted by the
// command dispatcher on behalf of a bot.
func (m Message) IsCommandResponse() bool {
	v, ok := m.Metadata["is_command_response"].(bool)
	return ok && v
}

// MessageView is a message decorated with the cross-references a channel
// view renders: the quoted parent, live thread size and grouped reactions.
type MessageView struct {
	Message
	ReplyingTo *Message        `json:"replying_to,omitempty"`
	ThreadSize int             `json:"thread_size"`
	Reactions  []ReactionGroup `json:"reactions,omitempty"`
}
