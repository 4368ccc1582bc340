package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

// Notifier delivers toast-style notifications to a user's live sessions.
// Implementations must be safe for concurrent use; the command dispatcher
// calls Notify from its own goroutines.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n models.Notification)
}

// LogNotifier writes notifications to the log. Used when no realtime hub is
// wired, and as the fallback sink in tests.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, userID uuid.UUID, n models.Notification) {
	l.Logger.Info().
		Str("user_id", userID.String()).
		Str("variant", n.Variant).
		Str("title", n.Title).
		Str("description", n.Description).
		Msg("notification")
}
