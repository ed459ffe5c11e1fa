package database

import (
	"context"
)

// PostgresStore is the Postgres implementation of Store.
type PostgresStore struct {
	*TaskRepository
	*ChecklistRepository
	*ReminderRepository
	*HistoryRepository

	db       *DB
	listener *ReminderListener
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore assembles the repositories over db. listener may be nil.
func NewPostgresStore(db *DB, listener *ReminderListener) *PostgresStore {
	return &PostgresStore{
		TaskRepository:      NewTaskRepository(db),
		ChecklistRepository: NewChecklistRepository(db),
		ReminderRepository:  NewReminderRepository(db, listener),
		HistoryRepository:   NewHistoryRepository(db),
		db:                  db,
		listener:            listener,
	}
}

// Ping checks the connection pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the listener and the pool
func (s *PostgresStore) Close() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return s.db.Close()
}
