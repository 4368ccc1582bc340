package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

// AttachmentRepository persists attachment metadata rows.
type AttachmentRepository interface {
	CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error)
}

// AttachmentRepo is the sqlx implementation of AttachmentRepository.
type AttachmentRepo struct {
	db *sqlx.DB
}

// NewAttachmentRepo constructs an AttachmentRepo.
func NewAttachmentRepo(db *sqlx.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// CreateAttachment stores the metadata row for an uploaded object.
func (r *AttachmentRepo) CreateAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error) {
	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO attachments
        (id, channel_id, uploader_id, bucket, key, name, content_type, size, url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at`,
		att.ID, att.ChannelID, att.UploaderID, att.Bucket, att.Key,
		att.Name, att.ContentType, att.Size, att.URL).
		Scan(&att.CreatedAt)
	return att, err
}
