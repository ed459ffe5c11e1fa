package models

import (
	"github.com/google/uuid"
)

// userNamespace derives stable user IDs from identity-provider subjects.
var userNamespace = uuid.MustParse("6f1d2c83-52a4-4a43-9d0c-0b8f3f0e61a7")

// User is the authenticated principal that owns tasks, lists and reminders.
type User struct {
	ID      uuid.UUID `json:"id"`
	Subject string    `json:"subject"`
	Email   string    `json:"email,omitempty"`
	Name    string    `json:"name,omitempty"`
}

// UserIDFromSubject maps an identity-provider subject to a deterministic user ID.
func UserIDFromSubject(subject string) uuid.UUID {
	return uuid.NewSHA1(userNamespace, []byte(subject))
}
