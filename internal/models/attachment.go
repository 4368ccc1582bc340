package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is the metadata row created alongside an object-storage upload.
type Attachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ChannelID   uuid.UUID `db:"channel_id" json:"channel_id"`
	UploaderID  uuid.UUID `db:"uploader_id" json:"uploader_id"`
	Bucket      string    `db:"bucket" json:"bucket"`
	Key         string    `db:"key" json:"key"`
	Name        string    `db:"name" json:"name"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	URL         string    `db:"url" json:"url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Descriptor is the shape embedded into message metadata for rendering.
func (a Attachment) Descriptor() map[string]any {
	return map[string]any{
		"id":           a.ID.String(),
		"name":         a.Name,
		"content_type": a.ContentType,
		"size":         a.Size,
		"url":          a.URL,
	}
}
