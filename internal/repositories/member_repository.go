package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

var ErrChannelNotFound = errors.New("channel not found")

// MemberRepository defines the two member sources the presence reconciler
// merges: explicit channel grants and, for public channels, every user.
type MemberRepository interface {
	ListChannelMembers(ctx context.Context, channelID uuid.UUID) ([]models.Member, error)
	ListAllUsers(ctx context.Context) ([]models.Member, error)
	IsChannelPublic(ctx context.Context, channelID uuid.UUID) (bool, error)
	UpdatePresence(ctx context.Context, userID uuid.UUID, status, customStatus string) error
}

// MemberRepo is the sqlx implementation of MemberRepository.
type MemberRepo struct {
	db *sqlx.DB
}

// NewMemberRepo constructs a MemberRepo.
func NewMemberRepo(db *sqlx.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

// ListChannelMembers returns users with an explicit membership grant,
// carrying their assigned role and live presence.
func (r *MemberRepo) ListChannelMembers(ctx context.Context, channelID uuid.UUID) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members, `SELECT u.id AS user_id, u.name, cm.role, u.status, u.custom_status
        FROM channel_members cm INNER JOIN users u ON u.id = cm.user_id
        WHERE cm.channel_id=$1`, channelID)
	return members, err
}

// ListAllUsers returns every user as an implicit role-member row.
func (r *MemberRepo) ListAllUsers(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members, `SELECT id AS user_id, name, 'member' AS role, status, custom_status
        FROM users`)
	return members, err
}

// IsChannelPublic reports whether the channel belongs to a public group.
func (r *MemberRepo) IsChannelPublic(ctx context.Context, channelID uuid.UUID) (bool, error) {
	var public bool
	err := r.db.GetContext(ctx, &public, `SELECT is_public FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrChannelNotFound
	}
	return public, err
}

// UpdatePresence stores a user's presence status and custom status text.
func (r *MemberRepo) UpdatePresence(ctx context.Context, userID uuid.UUID, status, customStatus string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET status=$1, custom_status=$2 WHERE id=$3`,
		status, customStatus, userID)
	return err
}
