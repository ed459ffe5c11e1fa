package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/queue"
)

// PublishArchived forwards archival events to pub as reminder_archived
// events. A failed publish is logged; the archive itself already happened.
func PublishArchived(pub queue.EventPublisher, logger *zap.Logger) ArchivedHandler {
	return func(ctx context.Context, ev ArchivedEvent) {
		event := queue.NewReminderArchivedEvent(ev.UserID, ev.ReminderIDs, ev.MovedAt)
		if err := pub.Publish(ctx, event); err != nil {
			logger.Warn("archived_event_publish_failed",
				zap.String("user_id", ev.UserID.String()),
				zap.Int("reminder_count", len(ev.ReminderIDs)),
				zap.Error(err),
			)
		}
	}
}
