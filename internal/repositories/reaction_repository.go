package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

// ReactionRepository defines persistence for message reactions.
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID, userID uuid.UUID, emoji string) (added bool, err error)
	ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error)
}

// ReactionRepo is the sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// Toggle inserts the (message, user, emoji) triple, or deletes it when it
// already exists. Returns whether the reaction now exists.
func (r *ReactionRepo) Toggle(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reactions
        WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if deleted > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO reactions (message_id, user_id, emoji)
        VALUES ($1, $2, $3)`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListForMessage returns a message's reaction rows with user projections,
// oldest first so group order is stable.
func (r *ReactionRepo) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	var rows []models.Reaction
	err := r.db.SelectContext(ctx, &rows, `SELECT r.message_id, r.user_id, r.emoji, r.created_at,
            COALESCE(u.name, '') AS user_name
        FROM reactions r LEFT JOIN users u ON u.id = r.user_id
        WHERE r.message_id=$1
        ORDER BY r.created_at ASC`, messageID)
	return rows, err
}
