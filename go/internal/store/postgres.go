package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Postgres is the durable Store.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// DB exposes the handle for components sharing the pool, such as the outbox.
func (p *Postgres) DB() *sqlx.DB {
	return p.db
}

// queries runs writes against a transaction bound by sqlutil.Run.
type queries struct {
	ext sqlx.ExtContext
}

func bindQueries(tx *sqlx.Tx) *queries {
	return &queries{ext: tx}
}

type teamRow struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	LeaderID    uuid.UUID      `db:"leader_id"`
	LeaderName  string         `db:"leader_name"`
	ManagerID   uuid.NullUUID  `db:"manager_id"`
	ManagerName sql.NullString `db:"manager_name"`
	CreatedAt   time.Time      `db:"created_at"`
}

type memberRow struct {
	UserID      uuid.UUID `db:"user_id"`
	DisplayName string    `db:"display_name"`
}

type topicRow struct {
	ID          uuid.UUID      `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
}

type sessionRow struct {
	ID               uuid.UUID `db:"id"`
	TeamID           uuid.UUID `db:"team_id"`
	TopicID          uuid.UUID `db:"topic_id"`
	Status           string    `db:"status"`
	CurrentRound     int       `db:"current_round"`
	RoundCount       int       `db:"round_count"`
	RoundDurationSec int       `db:"round_duration_sec"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type roundRow struct {
	ID            uuid.UUID      `db:"id"`
	SessionID     uuid.UUID      `db:"session_id"`
	RoundNumber   int            `db:"round_number"`
	TimerState    string         `db:"timer_state"`
	StartTime     time.Time      `db:"start_time"`
	EndTime       sql.NullTime   `db:"end_time"`
	PausedAt      sql.NullTime   `db:"paused_at"`
	PausedSeconds int            `db:"paused_seconds"`
	CloseReason   sql.NullString `db:"close_reason"`
	CreatedAt     time.Time      `db:"created_at"`
}

type ideaRow struct {
	ID          uuid.UUID     `db:"id"`
	SessionID   uuid.UUID     `db:"session_id"`
	RoundID     uuid.UUID     `db:"round_id"`
	RoundNumber int           `db:"round_number"`
	AuthorID    uuid.UUID     `db:"author_id"`
	Position    int           `db:"position"`
	Text        string        `db:"text"`
	PassedFrom  uuid.NullUUID `db:"passed_from"`
	CreatedAt   time.Time     `db:"created_at"`
}

type logRow struct {
	ID        uuid.UUID             `db:"id"`
	SessionID uuid.UUID             `db:"session_id"`
	ActorID   uuid.NullUUID         `db:"actor_id"`
	Action    string                `db:"action"`
	Payload   pqtype.NullRawMessage `db:"payload"`
	CreatedAt time.Time             `db:"created_at"`
}

func (p *Postgres) GetTeam(ctx context.Context, id uuid.UUID) (models.Team, error) {
	var row teamRow
	err := sqlx.GetContext(ctx, p.db, &row, `
		SELECT id, name, leader_id, leader_name, manager_id, manager_name, created_at
		FROM teams WHERE id = $1`, id)
	if err != nil {
		return models.Team{}, notFound(err, "team", id)
	}

	var members []memberRow
	err = sqlx.SelectContext(ctx, p.db, &members, `
		SELECT user_id, display_name FROM team_members
		WHERE team_id = $1 ORDER BY position`, id)
	if err != nil {
		return models.Team{}, fmt.Errorf("failed to list team members: %w", err)
	}

	team := models.Team{
		ID:        row.ID,
		Name:      row.Name,
		Leader:    models.Member{UserID: row.LeaderID, DisplayName: row.LeaderName},
		CreatedAt: row.CreatedAt,
		Members:   make([]models.Member, len(members)),
	}
	if managerID := sqlutil.FromNullUUID(row.ManagerID); managerID != nil {
		team.Manager = &models.Member{
			UserID:      *managerID,
			DisplayName: sqlutil.FromSqlString(row.ManagerName, ""),
		}
	}
	for i, m := range members {
		team.Members[i] = models.Member{UserID: m.UserID, DisplayName: m.DisplayName}
	}
	return team, nil
}

func (p *Postgres) GetTopic(ctx context.Context, id uuid.UUID) (models.Topic, error) {
	var row topicRow
	err := sqlx.GetContext(ctx, p.db, &row, `SELECT id, title, description FROM topics WHERE id = $1`, id)
	if err != nil {
		return models.Topic{}, notFound(err, "topic", id)
	}
	return models.Topic{
		ID:          row.ID,
		Title:       row.Title,
		Description: sqlutil.FromSqlString(row.Description, ""),
	}, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s models.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, team_id, topic_id, status, current_round, round_count,
			round_duration_sec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.TeamID, s.TopicID, string(s.Status), s.CurrentRound, s.RoundCount,
		s.RoundDurationSec, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, p.db, &row, `
		SELECT id, team_id, topic_id, status, current_round, round_count,
			round_duration_sec, created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	if err != nil {
		return models.Session{}, notFound(err, "session", id)
	}
	return models.Session{
		ID:               row.ID,
		TeamID:           row.TeamID,
		TopicID:          row.TopicID,
		Status:           models.SessionStatus(row.Status),
		CurrentRound:     row.CurrentRound,
		RoundCount:       row.RoundCount,
		RoundDurationSec: row.RoundDurationSec,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (p *Postgres) SaveProgress(ctx context.Context, s models.Session, rounds ...models.Round) error {
	return sqlutil.Run(ctx, p.db, bindQueries, func(q *queries) error {
		if err := q.updateSession(ctx, s); err != nil {
			return err
		}
		for _, r := range rounds {
			if err := q.upsertRound(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *queries) updateSession(ctx context.Context, s models.Session) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE sessions SET status = $2, current_round = $3, updated_at = $4
		WHERE id = $1`, s.ID, string(s.Status), s.CurrentRound, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (q *queries) upsertRound(ctx context.Context, r models.Round) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO rounds (id, session_id, round_number, timer_state, start_time, end_time,
			paused_at, paused_seconds, close_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			timer_state = EXCLUDED.timer_state,
			end_time = EXCLUDED.end_time,
			paused_at = EXCLUDED.paused_at,
			paused_seconds = EXCLUDED.paused_seconds,
			close_reason = EXCLUDED.close_reason`,
		r.ID, r.SessionID, r.RoundNumber, string(r.TimerState), r.StartTime,
		sqlutil.ToSqlTime(r.EndTime), sqlutil.ToSqlTime(r.PausedAt), r.PausedSeconds,
		sqlutil.ToSqlStringNonEmpty(string(r.CloseReason)), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert round %d: %w", r.RoundNumber, err)
	}
	return nil
}

func (p *Postgres) ListRounds(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	var rows []roundRow
	err := sqlx.SelectContext(ctx, p.db, &rows, `
		SELECT id, session_id, round_number, timer_state, start_time, end_time,
			paused_at, paused_seconds, close_reason, created_at
		FROM rounds WHERE session_id = $1 ORDER BY round_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	out := make([]models.Round, len(rows))
	for i, row := range rows {
		out[i] = models.Round{
			ID:            row.ID,
			SessionID:     row.SessionID,
			RoundNumber:   row.RoundNumber,
			TimerState:    models.TimerState(row.TimerState),
			StartTime:     row.StartTime,
			EndTime:       sqlutil.FromSqlTime(row.EndTime),
			PausedAt:      sqlutil.FromSqlTime(row.PausedAt),
			PausedSeconds: row.PausedSeconds,
			CloseReason:   models.CloseReason(sqlutil.FromSqlString(row.CloseReason, "")),
			CreatedAt:     row.CreatedAt,
		}
	}
	return out, nil
}

// InsertIdeas writes one submission in a single transaction.
func (p *Postgres) InsertIdeas(ctx context.Context, ideas []models.Idea) error {
	return sqlutil.Run(ctx, p.db, bindQueries, func(q *queries) error {
		for _, idea := range ideas {
			_, err := q.ext.ExecContext(ctx, `
				INSERT INTO ideas (id, session_id, round_id, round_number, author_id,
					position, text, passed_from, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				idea.ID, idea.SessionID, idea.RoundID, idea.RoundNumber, idea.AuthorID,
				idea.Position, idea.Text, sqlutil.ToNullUUID(idea.PassedFrom), idea.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert idea: %w", err)
			}
		}
		return nil
	})
}

func (p *Postgres) ListIdeas(ctx context.Context, sessionID uuid.UUID) ([]models.Idea, error) {
	var rows []ideaRow
	err := sqlx.SelectContext(ctx, p.db, &rows, `
		SELECT id, session_id, round_id, round_number, author_id, position, text,
			passed_from, created_at
		FROM ideas WHERE session_id = $1
		ORDER BY round_number, created_at, position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}

	out := make([]models.Idea, len(rows))
	for i, row := range rows {
		out[i] = models.Idea{
			ID:          row.ID,
			SessionID:   row.SessionID,
			RoundID:     row.RoundID,
			RoundNumber: row.RoundNumber,
			AuthorID:    row.AuthorID,
			Position:    row.Position,
			Text:        row.Text,
			PassedFrom:  sqlutil.FromNullUUID(row.PassedFrom),
			CreatedAt:   row.CreatedAt,
		}
	}
	return out, nil
}

func (p *Postgres) AppendLog(ctx context.Context, entry models.SessionLog) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO session_logs (id, session_id, actor_id, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.SessionID, sqlutil.ToNullUUID(entry.ActorID), string(entry.Action),
		pqtype.NullRawMessage{RawMessage: entry.Payload, Valid: len(entry.Payload) > 0},
		entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append session log: %w", err)
	}
	return nil
}

func (p *Postgres) ListLogs(ctx context.Context, sessionID uuid.UUID) ([]models.SessionLog, error) {
	var rows []logRow
	err := sqlx.SelectContext(ctx, p.db, &rows, `
		SELECT id, session_id, actor_id, action, payload, created_at
		FROM session_logs WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session logs: %w", err)
	}

	out := make([]models.SessionLog, len(rows))
	for i, row := range rows {
		out[i] = models.SessionLog{
			ID:        row.ID,
			SessionID: row.SessionID,
			ActorID:   sqlutil.FromNullUUID(row.ActorID),
			Action:    models.SessionAction(row.Action),
			CreatedAt: row.CreatedAt,
		}
		if row.Payload.Valid {
			out[i].Payload = row.Payload.RawMessage
		}
	}
	return out, nil
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
