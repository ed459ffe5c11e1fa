package models

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is one transcribed spoken command. It is never persisted.
type Utterance struct {
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
	SessionID uuid.UUID `json:"session_id"`
}
