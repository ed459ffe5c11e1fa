package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ReminderChannel is the NOTIFY channel fired by the reminders trigger.
const ReminderChannel = "reminders_changed"

// ReminderListener fans Postgres change notifications out to per-user watchers.
type ReminderListener struct {
	listener *pq.Listener
	logger   *zap.Logger

	mu       sync.Mutex
	watchers map[uuid.UUID]map[chan struct{}]struct{}
}

// NewReminderListener opens a LISTEN connection on ReminderChannel.
func NewReminderListener(connStr string, logger *zap.Logger) (*ReminderListener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &ReminderListener{
		logger:   logger,
		watchers: make(map[uuid.UUID]map[chan struct{}]struct{}),
	}
	l.listener = pq.NewListener(connStr, 2*time.Second, time.Minute, l.onEvent)
	if err := l.listener.Listen(ReminderChannel); err != nil {
		_ = l.listener.Close()
		return nil, err
	}
	return l, nil
}

func (l *ReminderListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("reminder_listener_connect_failed", zap.Error(err))
	case pq.ListenerEventDisconnected:
		l.logger.Warn("reminder_listener_disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("reminder_listener_reconnected")
	}
}

// Run dispatches notifications until ctx ends.
func (l *ReminderListener) Run(ctx context.Context) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			if n == nil {
				// nil follows a reconnect; notifications may have been lost
				l.broadcast()
				continue
			}
			id, err := uuid.Parse(n.Extra)
			if err != nil {
				l.logger.Warn("reminder_listener_bad_payload", zap.String("payload", n.Extra))
				continue
			}
			l.signal(id)
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn("reminder_listener_ping_failed", zap.Error(err))
			}
		}
	}
}

// Watch returns a channel that receives a value after each change to the
// user's reminders, and a function that stops watching.
func (l *ReminderListener) Watch(userID uuid.UUID) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	if l.watchers[userID] == nil {
		l.watchers[userID] = make(map[chan struct{}]struct{})
	}
	l.watchers[userID][ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.watchers[userID], ch)
			if len(l.watchers[userID]) == 0 {
				delete(l.watchers, userID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *ReminderListener) signal(userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.watchers[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (l *ReminderListener) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range l.watchers {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Close closes the LISTEN connection.
func (l *ReminderListener) Close() error {
	return l.listener.Close()
}
