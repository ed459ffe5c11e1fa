package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// ArchivedEvent reports reminders moved to history in one transaction.
type ArchivedEvent struct {
	UserID      uuid.UUID   `json:"user_id"`
	ReminderIDs []uuid.UUID `json:"reminder_ids"`
	MovedAt     time.Time   `json:"moved_at"`
}

// ArchivedHandler receives an event after each successful archive.
type ArchivedHandler func(ctx context.Context, ev ArchivedEvent)

// PartitionExpired splits reminders into those whose time is strictly before
// now and the rest. Completed reminders are in neither.
func PartitionExpired(reminders []*models.Reminder, now time.Time) (expired, pending []*models.Reminder) {
	for _, r := range reminders {
		switch {
		case r.Expired(now):
			expired = append(expired, r)
		case !r.Completed:
			pending = append(pending, r)
		}
	}
	return expired, pending
}

// Archiver moves expired reminders to history
type Archiver struct {
	store  database.HistoryStore
	logger *zap.Logger
	now    func() time.Time
}

// NewArchiver creates an archiver over store
func NewArchiver(store database.HistoryStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger, now: time.Now}
}

// Archive moves expired to history in one transaction stamped with the
// current time. The store re-reads every reminder, so entries that were
// completed, deleted, rescheduled or already archived are skipped. A lost race
// is returned as *database.TransactionConflictError.
func (a *Archiver) Archive(ctx context.Context, userID uuid.UUID, expired []*models.Reminder) ([]models.HistoryRecord, error) {
	if len(expired) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.ID)
	}

	movedAt := a.now()
	records, err := a.store.ArchiveReminders(ctx, userID, ids, movedAt)
	if err != nil {
		return nil, err
	}

	a.logger.Info("reminders_archived",
		zap.String("user_id", userID.String()),
		zap.Int("requested", len(ids)),
		zap.Int("archived", len(records)),
		zap.Time("moved_at", movedAt),
	)
	return records, nil
}
