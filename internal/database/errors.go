package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is wrapped by every lookup that matched no record.
var ErrNotFound = errors.New("record not found")

// PersistenceError is a failed read or write against the store. Writes are
// never retried automatically.
type PersistenceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransactionConflictError means a transaction lost a race with a concurrent
// writer. The archival scanner retries it on its next tick.
type TransactionConflictError struct {
	Op  string
	Err error
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("%s: transaction conflict: %v", e.Op, e.Err)
}

func (e *TransactionConflictError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a *TransactionConflictError.
func IsConflict(err error) bool {
	var c *TransactionConflictError
	return errors.As(err, &c)
}

// Wrap converts a backend failure into a *PersistenceError unless it already
// is one or is a conflict.
func Wrap(op, collection string, err error) error {
	return persistenceErr(op, collection, err)
}

func persistenceErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || IsConflict(err) {
		return err
	}
	return &PersistenceError{Op: op, Collection: collection, Err: err}
}

// NotFoundError builds the error returned when id does not exist in collection.
func NotFoundError(collection string, id fmt.Stringer) error {
	return &PersistenceError{Op: "get", Collection: collection, Err: fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)}
}

// pgConflictCodes are serialization_failure and deadlock_detected.
var pgConflictCodes = map[pq.ErrorCode]bool{
	"40001": true,
	"40P01": true,
}

// classifyPG maps lib/pq errors to the package's error types.
func classifyPG(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pgConflictCodes[pqErr.Code] {
		return &TransactionConflictError{Op: op, Err: err}
	}
	return persistenceErr(op, collection, err)
}
