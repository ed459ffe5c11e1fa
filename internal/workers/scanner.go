package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// DefaultScanInterval is the coarse tick that catches reminders expiring
// without any write.
const DefaultScanInterval = time.Minute

// ExpiryScanner watches one user's pending reminders and archives the ones
// that expire. It is the only goroutine touching its state.
type ExpiryScanner struct {
	store      database.ReminderStore
	archiver   *Archiver
	userID     uuid.UUID
	interval   time.Duration
	onArchived ArchivedHandler
	logger     *zap.Logger
	now        func() time.Time

	latest []*models.Reminder
}

// NewExpiryScanner creates a scanner for userID. onArchived may be nil.
func NewExpiryScanner(store database.ReminderStore, archiver *Archiver, userID uuid.UUID, interval time.Duration, onArchived ArchivedHandler, logger *zap.Logger) *ExpiryScanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryScanner{
		store:      store,
		archiver:   archiver,
		userID:     userID,
		interval:   interval,
		onArchived: onArchived,
		logger:     logger,
		now:        time.Now,
	}
}

// Run evaluates every snapshot of the pending set and the latest snapshot on
// every tick, until ctx ends.
func (s *ExpiryScanner) Run(ctx context.Context) error {
	snapshots, err := s.store.SubscribePending(ctx, s.userID)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return ctx.Err()
			}
			s.latest = snap
			s.scan(ctx)
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// ScanOnce reads the pending set directly and archives what has expired.
func (s *ExpiryScanner) ScanOnce(ctx context.Context) ([]models.HistoryRecord, error) {
	pending, err := s.store.ListPendingReminders(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	s.latest = pending
	return s.archive(ctx)
}

func (s *ExpiryScanner) scan(ctx context.Context) {
	_, err := s.archive(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case database.IsConflict(err):
		s.logger.Warn("reminder_archive_conflict",
			zap.String("user_id", s.userID.String()),
			zap.Error(err),
		)
	default:
		s.logger.Error("reminder_archive_failed",
			zap.String("user_id", s.userID.String()),
			zap.Error(err),
		)
	}
}

// archive handles the expired part of the latest snapshot. On failure the
// snapshot is kept, so the batch is retried on the next tick.
func (s *ExpiryScanner) archive(ctx context.Context) ([]models.HistoryRecord, error) {
	expired, pending := PartitionExpired(s.latest, s.now())
	if len(expired) == 0 {
		return nil, nil
	}

	records, err := s.archiver.Archive(ctx, s.userID, expired)
	if err != nil {
		return nil, err
	}
	s.latest = pending

	if len(records) > 0 && s.onArchived != nil {
		ev := ArchivedEvent{UserID: s.userID, MovedAt: records[0].MovedAt}
		for _, rec := range records {
			ev.ReminderIDs = append(ev.ReminderIDs, rec.ID)
		}
		s.onArchived(ctx, ev)
	}
	return records, nil
}
