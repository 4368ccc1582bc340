package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// UploadRequest carries one file upload into the gateway.
type UploadRequest struct {
	ChannelID   uuid.UUID
	UploaderID  uuid.UUID
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Gateway stores file bytes in the hosted object store and records a
// metadata row. The two writes are kept consistent manually: a metadata
// failure removes the just-uploaded object.
type Gateway struct {
	baseURL string
	bucket  string
	http    *http.Client
	repo    repositories.AttachmentRepository
	logger  zerolog.Logger
}

func NewGateway(baseURL, bucket string, repo repositories.AttachmentRepository, logger zerolog.Logger) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		bucket:  bucket,
		http:    &http.Client{Timeout: 2 * time.Minute},
		repo:    repo,
		logger:  logger,
	}
}

// Upload streams the object to storage and persists its metadata row.
// Object keys are channel-scoped ULIDs so listing a channel's files is a
// prefix scan and names never collide.
func (g *Gateway) Upload(ctx context.Context, req UploadRequest) (models.Attachment, error) {
	key := fmt.Sprintf("%s/%s-%s", req.ChannelID, ulid.Make(), req.Name)

	if err := g.putObject(ctx, key, req); err != nil {
		return models.Attachment{}, fmt.Errorf("upload object: %w", err)
	}

	att, err := g.repo.CreateAttachment(ctx, models.Attachment{
		ChannelID:   req.ChannelID,
		UploaderID:  req.UploaderID,
		Bucket:      g.bucket,
		Key:         key,
		Name:        req.Name,
		ContentType: req.ContentType,
		Size:        req.Size,
		URL:         g.PublicURL(key),
	})
	if err != nil {
		// Roll back the orphaned object; the row is the source of truth.
		if rmErr := g.removeObject(ctx, key); rmErr != nil {
			g.logger.Error().Err(rmErr).Str("key", key).Msg("orphaned object cleanup failed")
		}
		return models.Attachment{}, fmt.Errorf("store attachment metadata: %w", err)
	}
	return att, nil
}

// PublicURL returns the unauthenticated download URL for an object key.
func (g *Gateway) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", g.baseURL, g.bucket, key)
}

func (g *Gateway) putObject(ctx context.Context, key string, req UploadRequest) error {
	url := fmt.Sprintf("%s/object/%s/%s", g.baseURL, g.bucket, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, req.Body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	if req.Size > 0 {
		httpReq.ContentLength = req.Size
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *Gateway) removeObject(ctx context.Context, key string) error {
	url := fmt.Sprintf("%s/object/%s/%s", g.baseURL, g.bucket, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage returned status %d", resp.StatusCode)
	}
	return nil
}
