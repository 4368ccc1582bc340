package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("only the sender may modify the message")
)

const messageColumns = `m.id, m.channel_id, m.sender_id, m.content, m.type,
        m.thread_id, m.replying_to_id, m.metadata, m.created_at, m.updated_at, m.deleted_at,
        COALESCE(u.name, '') AS sender_name`

// MessageRepository defines persistence for channel messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	ListChannelPage(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error)
	ListThread(ctx context.Context, threadID uuid.UUID, limit int) ([]models.Message, error)
	ListChannelHistory(ctx context.Context, channelID uuid.UUID) ([]models.Message, error)
	SearchChannel(ctx context.Context, channelID uuid.UUID, query string, limit int) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID, senderID uuid.UUID, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error
	CountThreadReplies(ctx context.Context, threadID uuid.UUID) (int, error)
}

// MessageRepo is the sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message row. Missing id/timestamps are filled in.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = msg.CreatedAt

	_, err := r.db.ExecContext(ctx, `INSERT INTO messages
        (id, channel_id, sender_id, content, type, thread_id, replying_to_id, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.Type,
		msg.ThreadID, msg.ReplyingToID, msg.Metadata, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message with its sender projection.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+`
        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChannelPage returns the newest non-deleted main-timeline messages,
// newest first, up to limit. Thread replies are excluded.
func (r *MessageRepo) ListChannelPage(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.channel_id=$1 AND m.deleted_at IS NULL AND m.thread_id IS NULL
        ORDER BY m.created_at DESC
        LIMIT $2`, channelID, limit)
	return msgs, err
}

// ListThread returns a thread's non-deleted replies, oldest first.
func (r *MessageRepo) ListThread(ctx context.Context, threadID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.thread_id=$1 AND m.deleted_at IS NULL
        ORDER BY m.created_at ASC
        LIMIT $2`, threadID, limit)
	return msgs, err
}

// ListChannelHistory returns every non-deleted message in the channel,
// oldest first. Used by the summary and index commands.
func (r *MessageRepo) ListChannelHistory(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.channel_id=$1 AND m.deleted_at IS NULL
        ORDER BY m.created_at ASC`, channelID)
	return msgs, err
}

// SearchChannel returns candidate messages containing the query as a
// case-insensitive substring. Ranking happens in the search package.
func (r *MessageRepo) SearchChannel(ctx context.Context, channelID uuid.UUID, query string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.channel_id=$1 AND m.deleted_at IS NULL AND m.content ILIKE '%' || $2 || '%'
        ORDER BY m.created_at DESC
        LIMIT $3`, channelID, query, limit)
	return msgs, err
}

// UpdateContent edits a message's content. Only the sender may edit.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, senderID uuid.UUID, content string) (models.Message, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET content=$1, updated_at=NOW()
        WHERE id=$2 AND sender_id=$3 AND deleted_at IS NULL`,
		content, messageID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, ErrNotSender
	}
	return r.GetMessage(ctx, messageID)
}

// SoftDelete marks a message deleted, swaps in the placeholder content and
// clears metadata. Rows are never hard-deleted here; attachment cleanup is
// the storage gateway's concern.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET deleted_at=NOW(), updated_at=NOW(), content=$1, metadata=NULL
        WHERE id=$2 AND sender_id=$3 AND deleted_at IS NULL`,
		models.DeletionPlaceholder, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotSender
	}
	return nil
}

// CountThreadReplies counts a thread's live replies. The reconciler always
// recomputes this instead of adjusting a counter, so a missed event cannot
// make it drift.
func (r *MessageRepo) CountThreadReplies(ctx context.Context, threadID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE thread_id=$1 AND deleted_at IS NULL`, threadID)
	return count, err
}
