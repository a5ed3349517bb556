package models

import (
	"time"

	"github.com/google/uuid"
)

// Idea is a single idea written by a roster member in a round. Ideas are
// immutable once stored.
type Idea struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	RoundID     uuid.UUID  `json:"round_id"`
	RoundNumber int        `json:"round_number"`
	AuthorID    uuid.UUID  `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	Position    int        `json:"position"`
	Text        string     `json:"text"`
	PassedFrom  *uuid.UUID `json:"passed_from,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
