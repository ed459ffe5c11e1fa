package workers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// ScanSupervisor runs one ExpiryScanner per user that owns pending
// reminders. Users are rediscovered every interval; scanners of users with
// nothing pending are stopped.
type ScanSupervisor struct {
	store      database.Store
	archiver   *Archiver
	interval   time.Duration
	onArchived ArchivedHandler
	logger     *zap.Logger

	mu     sync.Mutex
	runCtx context.Context
	// stopping is set once Run begins waiting; no scanner starts after it.
	stopping bool
	actors   map[uuid.UUID]context.CancelFunc
	wg       sync.WaitGroup
}

// NewScanSupervisor creates a supervisor. onArchived may be nil.
func NewScanSupervisor(store database.Store, interval time.Duration, onArchived ArchivedHandler, logger *zap.Logger) *ScanSupervisor {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanSupervisor{
		store:      store,
		archiver:   NewArchiver(store, logger),
		interval:   interval,
		onArchived: onArchived,
		logger:     logger,
		actors:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run discovers users until ctx ends, then waits for every scanner to stop.
func (s *ScanSupervisor) Run(ctx context.Context) error {
	s.logger.Info("scan_supervisor_started", zap.Duration("interval", s.interval))

	s.mu.Lock()
	s.runCtx = ctx
	s.stopping = false
	s.mu.Unlock()
	defer s.stop()

	s.discover(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan_supervisor_stopping", zap.Int("actors", s.ActorCount()))
			return ctx.Err()
		case <-ticker.C:
			s.discover(ctx)
		}
	}
}

// Ensure starts a scanner for userID if none is running, for callers that
// just created a reminder and do not want to wait for discovery. It does
// nothing before Run starts or after it returns.
func (s *ScanSupervisor) Ensure(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil || s.runCtx.Err() != nil {
		return
	}
	s.startLocked(s.runCtx, userID)
}

// stop refuses new scanners, cancels the running ones and waits for them.
func (s *ScanSupervisor) stop() {
	s.mu.Lock()
	s.stopping = true
	for id, cancel := range s.actors {
		cancel()
		delete(s.actors, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ActorCount is the number of running scanners
func (s *ScanSupervisor) ActorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}

func (s *ScanSupervisor) discover(ctx context.Context) {
	users, err := s.store.UsersWithPendingReminders(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scan_supervisor_discover_failed", zap.Error(err))
		}
		return
	}

	active := make(map[uuid.UUID]struct{}, len(users))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range users {
		active[id] = struct{}{}
		s.startLocked(ctx, id)
	}
	for id, cancel := range s.actors {
		if _, ok := active[id]; !ok {
			cancel()
			delete(s.actors, id)
		}
	}
}

func (s *ScanSupervisor) startLocked(ctx context.Context, userID uuid.UUID) {
	if s.stopping {
		return
	}
	if _, running := s.actors[userID]; running {
		return
	}
	actorCtx, cancel := context.WithCancel(ctx)
	s.actors[userID] = cancel

	scanner := NewExpiryScanner(s.store, s.archiver, userID, s.interval, s.onArchived, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := scanner.Run(actorCtx)
		if err != nil && actorCtx.Err() == nil {
			s.logger.Error("expiry_scanner_stopped",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		s.mu.Lock()
		if s.actors[userID] != nil && actorCtx.Err() == nil {
			delete(s.actors, userID)
		}
		s.mu.Unlock()
		cancel()
	}()
}

// Watch wraps store so that reminder writes through it start a scanner for
// the owner immediately.
func (s *ScanSupervisor) Watch(store database.Store) database.Store {
	return &watchedStore{Store: store, supervisor: s}
}

type watchedStore struct {
	database.Store
	supervisor *ScanSupervisor
}

func (w *watchedStore) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if err := w.Store.CreateReminder(ctx, r); err != nil {
		return err
	}
	if r.ReminderTime != nil {
		w.supervisor.Ensure(r.UserID)
	}
	return nil
}

func (w *watchedStore) UpdateReminder(ctx context.Context, r *models.Reminder) error {
	if err := w.Store.UpdateReminder(ctx, r); err != nil {
		return err
	}
	if r.ReminderTime != nil && !r.Completed {
		w.supervisor.Ensure(r.UserID)
	}
	return nil
}
