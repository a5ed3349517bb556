package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/mcdev12/brainstorm/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Presence reports how many sockets are attached to a session.
type Presence interface {
	ConnectionCount(sessionID uuid.UUID) int
}

// Config wires a Registry.
type Config struct {
	Store            store.Store
	Sink             events.Sink
	Clock            clockwork.Clock
	TickInterval     time.Duration
	RoundDurationSec int
}

// CreateRequest describes a new session.
type CreateRequest struct {
	TeamID           uuid.UUID `json:"team_id"`
	TopicID          uuid.UUID `json:"topic_id"`
	RoundCount       int       `json:"round_count"`
	RoundDurationSec int       `json:"round_duration_sec,omitempty"`
}

type entry struct {
	once sync.Once
	c    *Coordinator
	err  error
}

// Registry holds the live coordinator of every session, one per session id.
// Coordinators are loaded on first access and evicted once their session is
// completed and nobody is connected to it.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	entries  map[uuid.UUID]*entry
	presence Presence
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RoundDurationSec <= 0 {
		cfg.RoundDurationSec = models.DefaultRoundDurationSec
	}
	return &Registry{
		cfg:     cfg,
		entries: make(map[uuid.UUID]*entry),
	}
}

// SetPresence lets the registry check for live connections before evicting.
func (r *Registry) SetPresence(p Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = p
}

// Create registers a PENDING session for a team. No round exists until start.
func (r *Registry) Create(ctx context.Context, actor uuid.UUID, req CreateRequest) (models.Session, error) {
	if req.RoundCount < models.MinRoundCount || req.RoundCount > models.MaxRoundCount {
		return models.Session{}, fmt.Errorf("%w: got %d", ErrInvalidRoundCount, req.RoundCount)
	}
	if req.RoundDurationSec <= 0 {
		req.RoundDurationSec = r.cfg.RoundDurationSec
	}

	team, err := r.cfg.Store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return models.Session{}, err
	}
	if _, err := r.cfg.Store.GetTopic(ctx, req.TopicID); err != nil {
		return models.Session{}, err
	}
	if role, ok := team.RoleOf(actor); !ok || !role.CanControl() {
		return models.Session{}, fmt.Errorf("%w: %s may not create sessions for team %s", ErrForbidden, actor, team.ID)
	}

	now := r.cfg.Clock.Now()
	session := models.Session{
		ID:               uuid.New(),
		TeamID:           team.ID,
		TopicID:          req.TopicID,
		Status:           models.SessionStatusPending,
		CurrentRound:     1,
		RoundCount:       req.RoundCount,
		RoundDurationSec: req.RoundDurationSec,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.cfg.Store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrActiveSessionExists) {
			return models.Session{}, fmt.Errorf("%w: team %s", ErrTeamAlreadyHasActiveSession, team.ID)
		}
		return models.Session{}, err
	}

	if err := r.cfg.Store.AppendLog(ctx, models.SessionLog{
		ID:        uuid.New(),
		SessionID: session.ID,
		ActorID:   &actor,
		Action:    models.ActionCreated,
		CreatedAt: now,
	}); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("failed to append session log")
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("team_id", team.ID.String()).
		Int("round_count", session.RoundCount).
		Msg("session created")
	return session, nil
}

// Get returns the coordinator for a session, loading it from the store on a miss.
func (r *Registry) Get(ctx context.Context, sessionID uuid.UUID) (*Coordinator, error) {
	e, err := r.entry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.c, nil
}

func (r *Registry) entry(ctx context.Context, sessionID uuid.UUID) (*entry, error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{}
		r.entries[sessionID] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.c, e.err = r.load(ctx, sessionID)
	})
	if e.err != nil {
		r.mu.Lock()
		if r.entries[sessionID] == e {
			delete(r.entries, sessionID)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e, nil
}

func (r *Registry) load(ctx context.Context, sessionID uuid.UUID) (*Coordinator, error) {
	session, err := r.cfg.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	team, err := r.cfg.Store.GetTeam(ctx, session.TeamID)
	if err != nil {
		return nil, err
	}
	topic, err := r.cfg.Store.GetTopic(ctx, session.TopicID)
	if err != nil {
		return nil, err
	}
	rounds, err := r.cfg.Store.ListRounds(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ideas, err := r.cfg.Store.ListIdeas(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c := newCoordinator(Deps{
		Store:        r.cfg.Store,
		Sink:         r.cfg.Sink,
		Clock:        r.cfg.Clock,
		TickInterval: r.cfg.TickInterval,
	}, session, team, topic)
	c.onComplete = r.Release

	if err := c.restore(rounds, ideas); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}
	go c.run()
	if err := c.do(ctx, func() error { c.catchUp(); return nil }); err != nil {
		c.Stop()
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("status", string(session.Status)).
		Int("rounds", len(rounds)).
		Msg("session coordinator loaded")
	return c, nil
}

// with runs fn against the session's coordinator, reloading it once if it
// was evicted between lookup and use.
func (r *Registry) with(ctx context.Context, sessionID uuid.UUID, fn func(*Coordinator) error) error {
	for attempt := 0; ; attempt++ {
		e, err := r.entry(ctx, sessionID)
		if err == nil {
			err = fn(e.c)
			if errStopped(err) {
				r.forget(sessionID, e)
			}
		}
		if errStopped(err) && attempt == 0 {
			continue
		}
		return err
	}
}

// Control applies a staff action to a session.
func (r *Registry) Control(ctx context.Context, sessionID, actor uuid.UUID, action Action) (models.SessionStatus, error) {
	var status models.SessionStatus
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		status, err = c.Control(ctx, actor, action)
		return err
	})
	return status, err
}

// SubmitIdeas records a member's ideas for a round.
func (r *Registry) SubmitIdeas(ctx context.Context, sessionID, member uuid.UUID, roundNumber int, ideas []string) ([]models.Idea, error) {
	var out []models.Idea
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		out, err = c.SubmitIdeas(ctx, member, roundNumber, ideas)
		return err
	})
	return out, err
}

// Snapshot returns the session state as viewer sees it.
func (r *Registry) Snapshot(ctx context.Context, sessionID, viewer uuid.UUID) (Snapshot, error) {
	var out Snapshot
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		out, err = c.Snapshot(ctx, viewer)
		return err
	})
	return out, err
}

func (r *Registry) Rounds(ctx context.Context, sessionID, viewer uuid.UUID) ([]models.Round, error) {
	var out []models.Round
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		out, err = c.Rounds(ctx, viewer)
		return err
	})
	return out, err
}

func (r *Registry) Ideas(ctx context.Context, sessionID, viewer uuid.UUID) ([]RoundIdeas, error) {
	var out []RoundIdeas
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		out, err = c.Ideas(ctx, viewer)
		return err
	})
	return out, err
}

func (r *Registry) Log(ctx context.Context, sessionID, viewer uuid.UUID) ([]models.SessionLog, error) {
	var out []models.SessionLog
	err := r.with(ctx, sessionID, func(c *Coordinator) error {
		var err error
		out, err = c.Log(ctx, viewer)
		return err
	})
	return out, err
}

// Release evicts a session's coordinator when the session is completed and
// no socket is attached to it. It is safe to call at any time.
func (r *Registry) Release(sessionID uuid.UUID) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	presence := r.presence
	r.mu.Unlock()
	if !ok {
		return
	}
	// waits for an in-flight load; an entry nobody loaded yet is poisoned
	// and reloaded by its next caller
	e.once.Do(func() { e.err = ErrCoordinatorStopped })
	if e.err != nil {
		return
	}
	if presence != nil && presence.ConnectionCount(sessionID) > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	session, err := e.c.Session(ctx)
	if err != nil || session.Status != models.SessionStatusCompleted {
		return
	}

	if r.forget(sessionID, e) {
		log.Info().Str("session_id", sessionID.String()).Msg("session coordinator released")
	}
}

// forget drops e from the registry if it is still the live entry and stops
// its coordinator. e must be loaded.
func (r *Registry) forget(sessionID uuid.UUID, e *entry) bool {
	r.mu.Lock()
	match := r.entries[sessionID] == e
	if match {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	e.c.Stop()
	return match
}

// Len returns the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every coordinator. Open rounds stay open in storage.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.once.Do(func() { e.err = ErrCoordinatorStopped })
		if e.c != nil {
			e.c.Stop()
		}
	}
}
