package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is one (message, user, emoji) row. The triple is unique; adding
// an existing triple removes it instead (toggle semantics).
type Reaction struct {
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	UserName string `db:"user_name" json:"user_name,omitempty"`
}

// ReactionGroup is the per-emoji aggregate a message view renders. Users
// holds display names for the hover tooltip.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// GroupReactions folds reaction rows into per-emoji groups. Rows sharing an
// emoji merge into one group; group order follows first appearance. Rows
// missing the joined display name fall back to the user id.
func GroupReactions(rows []Reaction) []ReactionGroup {
	byEmoji := make(map[string]int, len(rows))
	groups := make([]ReactionGroup, 0, len(rows))
	for _, r := range rows {
		idx, ok := byEmoji[r.Emoji]
		if !ok {
			byEmoji[r.Emoji] = len(groups)
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
			idx = len(groups) - 1
		}
		name := r.UserName
		if name == "" {
			name = r.UserID.String()
		}
		groups[idx].Count++
		groups[idx].Users = append(groups[idx].Users, name)
	}
	return groups
}
