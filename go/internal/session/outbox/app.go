package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/rs/zerolog/log"
)

// Writer is what the app layer needs from the repository
type Writer interface {
	Insert(ctx context.Context, event Event) error
}

// App turns session events into outbox rows.
type App struct {
	repo Writer
}

func NewApp(repo Writer) *App {
	return &App{repo: repo}
}

// Record stores a durable session event. Other events are ignored.
func (a *App) Record(ctx context.Context, event events.Event) error {
	if !event.Type.Durable() {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", event.Type, err)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("invalid %s payload: empty", event.Type)
	}

	row := Event{
		ID:        uuid.New(),
		SessionID: event.SessionID,
		EventType: string(event.Type),
		Payload:   payload,
		CreatedAt: event.Timestamp,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := a.repo.Insert(ctx, row); err != nil {
		return err
	}

	log.Info().
		Str("session_id", event.SessionID.String()).
		Str("event_type", string(event.Type)).
		Str("event_id", row.ID.String()).
		Msg("outbox event inserted")
	return nil
}
