package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupReactionsMergesByEmojiInFirstAppearanceOrder(t *testing.T) {
	messageID := uuid.New()
	rows := []Reaction{
		{MessageID: messageID, UserID: uuid.New(), Emoji: "🔥", UserName: "amy"},
		{MessageID: messageID, UserID: uuid.New(), Emoji: "👍", UserName: "abe"},
		{MessageID: messageID, UserID: uuid.New(), Emoji: "🔥", UserName: "zoe"},
	}

	groups := GroupReactions(rows)

	require.Len(t, groups, 2)
	assert.Equal(t, "🔥", groups[0].Emoji)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, []string{"amy", "zoe"}, groups[0].Users)
	assert.Equal(t, "👍", groups[1].Emoji)
	assert.Equal(t, []string{"abe"}, groups[1].Users)
}

func TestGroupReactionsFallsBackToUserID(t *testing.T) {
	userID := uuid.New()
	groups := GroupReactions([]Reaction{{UserID: userID, Emoji: "🔥"}})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{userID.String()}, groups[0].Users)
}

func TestGroupReactionsEmptyInput(t *testing.T) {
	assert.Empty(t, GroupReactions(nil))
}
