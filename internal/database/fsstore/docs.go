package fsstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

// Firestore cannot encode uuid.UUID, so documents carry IDs as strings and
// the document name doubles as the record ID.

type taskDoc struct {
	UserID      string     `firestore:"userId"`
	Title       string     `firestore:"title"`
	Description *string    `firestore:"description"`
	DueDate     *time.Time `firestore:"dueDate"`
	Completed   bool       `firestore:"completed"`
	CompletedAt *time.Time `firestore:"completedAt"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newTaskDoc(t *models.Task) taskDoc {
	return taskDoc{
		UserID:      t.UserID.String(),
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d taskDoc) model(id string) (*models.Task, error) {
	ids, err := parseIDs(id, d.UserID)
	if err != nil {
		return nil, err
	}
	return &models.Task{
		ID:          ids[0],
		UserID:      ids[1],
		Title:       d.Title,
		Description: d.Description,
		DueDate:     d.DueDate,
		Completed:   d.Completed,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type sectionDoc struct {
	Text      string `firestore:"text"`
	Completed bool   `firestore:"completed"`
}

type listDoc struct {
	UserID    string       `firestore:"userId"`
	Title     string       `firestore:"title"`
	Sections  []sectionDoc `firestore:"sections"`
	Completed bool         `firestore:"completed"`
	CreatedAt time.Time    `firestore:"createdAt"`
	UpdatedAt time.Time    `firestore:"updatedAt"`
}

func newListDoc(l *models.Checklist) listDoc {
	sections := make([]sectionDoc, 0, len(l.Sections))
	for _, s := range l.Sections {
		sections = append(sections, sectionDoc(s))
	}
	return listDoc{
		UserID:    l.UserID.String(),
		Title:     l.Title,
		Sections:  sections,
		Completed: l.Completed,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (d listDoc) model(id string) (*models.Checklist, error) {
	ids, err := parseIDs(id, d.UserID)
	if err != nil {
		return nil, err
	}
	sections := make([]models.Section, 0, len(d.Sections))
	for _, s := range d.Sections {
		sections = append(sections, models.Section(s))
	}
	return &models.Checklist{
		ID:        ids[0],
		UserID:    ids[1],
		Title:     d.Title,
		Sections:  sections,
		Completed: d.Completed,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

type reminderDoc struct {
	UserID       string     `firestore:"userId"`
	Title        string     `firestore:"title"`
	ReminderTime *time.Time `firestore:"reminderTime"`
	Completed    bool       `firestore:"completed"`
	CompletedAt  *time.Time `firestore:"completedAt"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func newReminderDoc(r *models.Reminder) reminderDoc {
	return reminderDoc{
		UserID:       r.UserID.String(),
		Title:        r.Title,
		ReminderTime: r.ReminderTime,
		Completed:    r.Completed,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (d reminderDoc) model(id string) (*models.Reminder, error) {
	ids, err := parseIDs(id, d.UserID)
	if err != nil {
		return nil, err
	}
	return &models.Reminder{
		ID:           ids[0],
		UserID:       ids[1],
		Title:        d.Title,
		ReminderTime: d.ReminderTime,
		Completed:    d.Completed,
		CompletedAt:  d.CompletedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type historyDoc struct {
	UserID       string     `firestore:"userId"`
	Title        string     `firestore:"title"`
	ReminderTime *time.Time `firestore:"reminderTime"`
	Completed    bool       `firestore:"completed"`
	CompletedAt  *time.Time `firestore:"completedAt"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
	MovedAt      time.Time  `firestore:"movedAt"`
}

func newHistoryDoc(h models.HistoryRecord) historyDoc {
	return historyDoc{
		UserID:       h.UserID.String(),
		Title:        h.Title,
		ReminderTime: h.ReminderTime,
		Completed:    h.Completed,
		CompletedAt:  h.CompletedAt,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
		MovedAt:      h.MovedAt,
	}
}

func (d historyDoc) model(id string) (*models.HistoryRecord, error) {
	r, err := reminderDoc{
		UserID:       d.UserID,
		Title:        d.Title,
		ReminderTime: d.ReminderTime,
		Completed:    d.Completed,
		CompletedAt:  d.CompletedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}.model(id)
	if err != nil {
		return nil, err
	}
	rec := models.NewHistoryRecord(*r, d.MovedAt)
	return &rec, nil
}

func parseIDs(values ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
