package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mcdev12/brainstorm/go/internal/sqlutil"
)

// Repository reads and writes the session_outbox table.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores an event and notifies listeners in the same transaction, so
// a notification never names a row that is not visible yet.
func (r *Repository) Insert(ctx context.Context, event Event) error {
	err := sqlutil.Run(ctx, r.db, func(tx *sqlx.Tx) *sqlx.Tx { return tx }, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_outbox (id, session_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			event.ID, event.SessionID, event.EventType, []byte(event.Payload), event.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, event.ID.String())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	var rows []Event
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, event_type, payload, created_at, sent_at
		FROM session_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	return rows, nil
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (Event, error) {
	var row Event
	err := r.db.GetContext(ctx, &row, `
		SELECT id, session_id, event_type, payload, created_at, sent_at
		FROM session_outbox
		WHERE id = $1 AND sent_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return row, nil
}

func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM session_outbox WHERE sent_at IS NULL`); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE session_outbox SET sent_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}
