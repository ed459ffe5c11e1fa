// Package fsstore implements database.Store on Cloud Firestore. Records live
// under artifacts/{appID}/users/{userID}/{collection}/{id}.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// Store is the Firestore backend
type Store struct {
	client *firestore.Client
	appID  string
	logger *zap.Logger
	now    func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open connects to Firestore. An empty credsFile uses application default
// credentials, and FIRESTORE_EMULATOR_HOST is honoured by the client.
func Open(ctx context.Context, projectID, appID, credsFile string, logger *zap.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return New(client, appID, logger), nil
}

// New wraps an existing client
func New(client *firestore.Client, appID string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, appID: appID, logger: logger, now: time.Now}
}

func (s *Store) coll(userID uuid.UUID, name string) *firestore.CollectionRef {
	return s.client.Collection("artifacts").Doc(s.appID).
		Collection("users").Doc(userID.String()).
		Collection(name)
}

func (s *Store) doc(userID uuid.UUID, name string, id uuid.UUID) *firestore.DocumentRef {
	return s.coll(userID, name).Doc(id.String())
}

// classify maps Firestore status codes to the database error types.
func classify(op, collection string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return database.NotFoundError(collection, id)
	case codes.Aborted:
		return &database.TransactionConflictError{Op: op, Err: err}
	}
	return database.Wrap(op, collection, err)
}

func stamp(id *uuid.UUID, created, updated *time.Time, now time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// getAll drains a document iterator, decoding each snapshot with decode.
func getAll[T any](it *firestore.DocumentIterator, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	defer it.Stop()
	out := []T{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := decode(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", snap.Ref.Path, err)
		}
		out = append(out, v)
	}
}

// update rewrites an existing document inside a transaction so a missing
// record surfaces as not found instead of being recreated.
func (s *Store) update(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, data)
	})
}

// CreateTask implements database.TaskStore
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	stamp(&task.ID, &task.CreatedAt, &task.UpdatedAt, s.now())
	_, err := s.doc(task.UserID, database.CollectionTasks, task.ID).Create(ctx, newTaskDoc(task))
	return classify("create", database.CollectionTasks, task.ID, err)
}

func decodeTask(snap *firestore.DocumentSnapshot) (*models.Task, error) {
	var d taskDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.model(snap.Ref.ID)
}

// GetTask implements database.TaskStore
func (s *Store) GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	snap, err := s.doc(userID, database.CollectionTasks, id).Get(ctx)
	if err != nil {
		return nil, classify("get", database.CollectionTasks, id, err)
	}
	t, err := decodeTask(snap)
	return t, classify("get", database.CollectionTasks, id, err)
}

// ListTasks implements database.TaskStore
func (s *Store) ListTasks(ctx context.Context, userID uuid.UUID, filter database.TaskFilter) ([]*models.Task, error) {
	q := s.coll(userID, database.CollectionTasks).Query
	if filter.Completed != nil {
		q = q.Where("completed", "==", *filter.Completed)
	}
	tasks, err := getAll(q.Documents(ctx), decodeTask)
	if err != nil {
		return nil, database.Wrap("list", database.CollectionTasks, err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// UpdateTask implements database.TaskStore
func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = s.now()
	err := s.update(ctx, s.doc(task.UserID, database.CollectionTasks, task.ID), newTaskDoc(task))
	return classify("update", database.CollectionTasks, task.ID, err)
}

// DeleteTask implements database.TaskStore
func (s *Store) DeleteTask(ctx context.Context, userID, id uuid.UUID) error {
	_, err := s.doc(userID, database.CollectionTasks, id).Delete(ctx, firestore.Exists)
	return classify("delete", database.CollectionTasks, id, err)
}

// CreateChecklist implements database.ChecklistStore
func (s *Store) CreateChecklist(ctx context.Context, list *models.Checklist) error {
	stamp(&list.ID, &list.CreatedAt, &list.UpdatedAt, s.now())
	if list.Sections == nil {
		list.Sections = []models.Section{}
	}
	_, err := s.doc(list.UserID, database.CollectionLists, list.ID).Create(ctx, newListDoc(list))
	return classify("create", database.CollectionLists, list.ID, err)
}

func decodeList(snap *firestore.DocumentSnapshot) (*models.Checklist, error) {
	var d listDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.model(snap.Ref.ID)
}

// GetChecklist implements database.ChecklistStore
func (s *Store) GetChecklist(ctx context.Context, userID, id uuid.UUID) (*models.Checklist, error) {
	snap, err := s.doc(userID, database.CollectionLists, id).Get(ctx)
	if err != nil {
		return nil, classify("get", database.CollectionLists, id, err)
	}
	l, err := decodeList(snap)
	return l, classify("get", database.CollectionLists, id, err)
}

// ListChecklists implements database.ChecklistStore
func (s *Store) ListChecklists(ctx context.Context, userID uuid.UUID) ([]*models.Checklist, error) {
	lists, err := getAll(s.coll(userID, database.CollectionLists).Documents(ctx), decodeList)
	if err != nil {
		return nil, database.Wrap("list", database.CollectionLists, err)
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].CreatedAt.After(lists[j].CreatedAt) })
	return lists, nil
}

// MutateChecklist implements database.ChecklistStore. Firestore retries the
// transaction when the document changes underneath it.
func (s *Store) MutateChecklist(ctx context.Context, userID, id uuid.UUID, fn database.ChecklistMutation) (*models.Checklist, error) {
	ref := s.doc(userID, database.CollectionLists, id)
	var result *models.Checklist
	var mutationErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		mutationErr = nil
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		list, err := decodeList(snap)
		if err != nil {
			return err
		}
		if mutationErr = fn(list); mutationErr != nil {
			return mutationErr
		}
		list.UpdatedAt = s.now()
		result = list
		return tx.Set(ref, newListDoc(list))
	})
	if mutationErr != nil {
		return nil, mutationErr
	}
	if err != nil {
		return nil, classify("mutate", database.CollectionLists, id, err)
	}
	return result, nil
}

// DeleteChecklist implements database.ChecklistStore
func (s *Store) DeleteChecklist(ctx context.Context, userID, id uuid.UUID) error {
	_, err := s.doc(userID, database.CollectionLists, id).Delete(ctx, firestore.Exists)
	return classify("delete", database.CollectionLists, id, err)
}

// CreateReminder implements database.ReminderStore
func (s *Store) CreateReminder(ctx context.Context, r *models.Reminder) error {
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt, s.now())
	_, err := s.doc(r.UserID, database.CollectionReminders, r.ID).Create(ctx, newReminderDoc(r))
	return classify("create", database.CollectionReminders, r.ID, err)
}

func decodeReminder(snap *firestore.DocumentSnapshot) (*models.Reminder, error) {
	var d reminderDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.model(snap.Ref.ID)
}

// GetReminder implements database.ReminderStore
func (s *Store) GetReminder(ctx context.Context, userID, id uuid.UUID) (*models.Reminder, error) {
	snap, err := s.doc(userID, database.CollectionReminders, id).Get(ctx)
	if err != nil {
		return nil, classify("get", database.CollectionReminders, id, err)
	}
	r, err := decodeReminder(snap)
	return r, classify("get", database.CollectionReminders, id, err)
}

// UpdateReminder implements database.ReminderStore
func (s *Store) UpdateReminder(ctx context.Context, r *models.Reminder) error {
	r.UpdatedAt = s.now()
	err := s.update(ctx, s.doc(r.UserID, database.CollectionReminders, r.ID), newReminderDoc(r))
	return classify("update", database.CollectionReminders, r.ID, err)
}

// DeleteReminder implements database.ReminderStore
func (s *Store) DeleteReminder(ctx context.Context, userID, id uuid.UUID) error {
	_, err := s.doc(userID, database.CollectionReminders, id).Delete(ctx, firestore.Exists)
	return classify("delete", database.CollectionReminders, id, err)
}

func (s *Store) remindersQuery(userID uuid.UUID, completed bool) firestore.Query {
	return s.coll(userID, database.CollectionReminders).Where("completed", "==", completed)
}

func sortReminders(rs []*models.Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].ReminderTime, rs[j].ReminderTime
		switch {
		case a == nil && b == nil:
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}

func (s *Store) listReminders(ctx context.Context, userID uuid.UUID, completed bool) ([]*models.Reminder, error) {
	rs, err := getAll(s.remindersQuery(userID, completed).Documents(ctx), decodeReminder)
	if err != nil {
		return nil, database.Wrap("list", database.CollectionReminders, err)
	}
	sortReminders(rs)
	return rs, nil
}

// ListPendingReminders implements database.ReminderStore
func (s *Store) ListPendingReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	return s.listReminders(ctx, userID, false)
}

// ListCompletedReminders implements database.ReminderStore
func (s *Store) ListCompletedReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	return s.listReminders(ctx, userID, true)
}

// UsersWithPendingReminders scans the reminders collection group.
func (s *Store) UsersWithPendingReminders(ctx context.Context) ([]uuid.UUID, error) {
	it := s.client.CollectionGroup(database.CollectionReminders).Where("completed", "==", false).Documents(ctx)
	owners, err := getAll(it, func(snap *firestore.DocumentSnapshot) (string, error) {
		var d reminderDoc
		if err := snap.DataTo(&d); err != nil {
			return "", err
		}
		return d.UserID, nil
	})
	if err != nil {
		return nil, database.Wrap("list", database.CollectionReminders, err)
	}

	seen := make(map[uuid.UUID]struct{})
	var users []uuid.UUID
	for _, owner := range owners {
		id, err := uuid.Parse(owner)
		if err != nil {
			s.logger.Warn("firestore_reminder_bad_owner", zap.String("user_id", owner))
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			users = append(users, id)
		}
	}
	return users, nil
}

// SubscribePending forwards the pending query's snapshot listener.
func (s *Store) SubscribePending(ctx context.Context, userID uuid.UUID) (<-chan []*models.Reminder, error) {
	it := s.remindersQuery(userID, false).Snapshots(ctx)
	first, err := nextSnapshot(it)
	if err != nil {
		it.Stop()
		return nil, database.Wrap("subscribe", database.CollectionReminders, err)
	}

	out := make(chan []*models.Reminder, 1)
	out <- first
	go func() {
		defer close(out)
		defer it.Stop()
		for {
			snap, err := nextSnapshot(it)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("firestore_pending_listener_stopped",
						zap.String("user_id", userID.String()),
						zap.Error(err))
				}
				return
			}
			database.OfferSnapshot(out, snap)
		}
	}()
	return out, nil
}

func nextSnapshot(it *firestore.QuerySnapshotIterator) ([]*models.Reminder, error) {
	qs, err := it.Next()
	if err != nil {
		return nil, err
	}
	rs, err := getAll(qs.Documents, decodeReminder)
	if err != nil {
		return nil, err
	}
	sortReminders(rs)
	return rs, nil
}

// ArchiveReminders implements database.HistoryStore. All reads happen before
// any write, as Firestore transactions require.
func (s *Store) ArchiveReminders(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var archived []models.HistoryRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		archived = archived[:0]

		refs := make([]*firestore.DocumentRef, 0, 2*len(ids))
		for _, id := range ids {
			refs = append(refs,
				s.doc(userID, database.CollectionReminders, id),
				s.doc(userID, database.CollectionHistory, id))
		}
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		for i := 0; i < len(snaps); i += 2 {
			remSnap, histSnap := snaps[i], snaps[i+1]
			if !remSnap.Exists() || histSnap.Exists() {
				continue
			}
			r, err := decodeReminder(remSnap)
			if err != nil {
				return err
			}
			if !r.Expired(movedAt) {
				continue
			}
			rec := models.NewHistoryRecord(*r, movedAt)
			if err := tx.Create(histSnap.Ref, newHistoryDoc(rec)); err != nil {
				return err
			}
			if err := tx.Delete(remSnap.Ref); err != nil {
				return err
			}
			archived = append(archived, rec)
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.Aborted {
			return nil, &database.TransactionConflictError{Op: "archive", Err: err}
		}
		return nil, database.Wrap("archive", database.CollectionHistory, err)
	}
	return archived, nil
}

// ListHistory implements database.HistoryStore
func (s *Store) ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error) {
	recs, err := getAll(s.coll(userID, database.CollectionHistory).Documents(ctx), func(snap *firestore.DocumentSnapshot) (*models.HistoryRecord, error) {
		var d historyDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		return d.model(snap.Ref.ID)
	})
	if err != nil {
		return nil, database.Wrap("list", database.CollectionHistory, err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].MovedAt.After(recs[j].MovedAt) })
	return recs, nil
}

// Ping reads a missing document, which only fails when the service is unreachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection("artifacts").Doc(s.appID).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// Close releases the client
func (s *Store) Close() error {
	return s.client.Close()
}
