package models

import "github.com/google/uuid"

// Channel roles, in rank order.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusIdle    = "idle"
	StatusDnd     = "dnd"
	StatusOffline = "offline"
)

// Member is a channel member with live presence attached.
type Member struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	Status       string    `db:"status" json:"status"`
	CustomStatus string    `db:"custom_status" json:"custom_status,omitempty"`
}

// RoleRank maps a role to its sort rank: owner < admin < member.
// Unknown roles sort last.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 0
	case RoleAdmin:
		return 1
	case RoleMember:
		return 2
	default:
		return 3
	}
}
