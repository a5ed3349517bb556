package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrActiveSessionExists = errors.New("team already has an active session")
)

// Sessions persists session state. Writes are durable when the call returns.
type Sessions interface {
	// CreateSession fails with ErrActiveSessionExists when the team already
	// has a session that is not COMPLETED.
	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
	// SaveProgress updates the session and upserts the given rounds atomically.
	SaveProgress(ctx context.Context, session models.Session, rounds ...models.Round) error
	ListRounds(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error)
	InsertIdeas(ctx context.Context, ideas []models.Idea) error
	ListIdeas(ctx context.Context, sessionID uuid.UUID) ([]models.Idea, error)
	AppendLog(ctx context.Context, entry models.SessionLog) error
	ListLogs(ctx context.Context, sessionID uuid.UUID) ([]models.SessionLog, error)
}

// Directory is the read-only view of teams and topics, which are managed elsewhere.
type Directory interface {
	GetTeam(ctx context.Context, id uuid.UUID) (models.Team, error)
	GetTopic(ctx context.Context, id uuid.UUID) (models.Topic, error)
}

// Store is everything the session core needs from persistence.
type Store interface {
	Sessions
	Directory
}
