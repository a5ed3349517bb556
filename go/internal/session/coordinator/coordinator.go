package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/mcdev12/brainstorm/go/internal/session/round"
	"github.com/mcdev12/brainstorm/go/internal/session/submission"
	"github.com/mcdev12/brainstorm/go/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	commandBuffer  = 64
	persistTimeout = 5 * time.Second
)

// Action is a staff control action.
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionEnd    Action = "end"
)

// ParseAction validates a control action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionPause, ActionResume, ActionEnd:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Deps are the collaborators shared by every coordinator.
type Deps struct {
	Store        store.Sessions
	Sink         events.Sink
	Clock        clockwork.Clock
	TickInterval time.Duration
}

// Coordinator is the single writer of one session. Every read and write of
// session state runs as a command on its goroutine, so the round-closing
// decision is made exactly once even when the last submission and the
// timer expiry race.
type Coordinator struct {
	id   uuid.UUID
	deps Deps

	session  models.Session
	team     models.Team
	topic    models.Topic
	rotation submission.Rotation

	// rounds holds every round opened so far; current is the last one.
	rounds  []*round.Engine
	current *round.Engine

	// expiredOnLoad marks a restored round whose deadline passed while no
	// coordinator was running.
	expiredOnLoad bool

	onComplete func(sessionID uuid.UUID)

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newCoordinator(deps Deps, session models.Session, team models.Team, topic models.Topic) *Coordinator {
	roster := team.Roster()
	ids := make([]uuid.UUID, len(roster))
	for i, m := range roster {
		ids[i] = m.UserID
	}
	return &Coordinator{
		id:       session.ID,
		deps:     deps,
		session:  session,
		team:     team,
		topic:    topic,
		rotation: submission.NewRotation(ids),
		cmds:     make(chan func(), commandBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			if c.current != nil {
				c.current.Abort()
			}
			return
		}
	}
}

// Stop halts the coordinator without closing the open round, so the session
// can be picked up again from storage.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// do runs fn on the coordinator goroutine and waits for its result.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case c.cmds <- func() { errCh <- fn() }:
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Timer callbacks use it.
func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.quit:
	}
}

// Session returns a copy of the session record.
func (c *Coordinator) Session(ctx context.Context) (models.Session, error) {
	var out models.Session
	err := c.do(ctx, func() error {
		c.settle()
		out = c.session
		return nil
	})
	return out, err
}

// Control applies a staff action and returns the resulting status.
func (c *Coordinator) Control(ctx context.Context, actor uuid.UUID, action Action) (models.SessionStatus, error) {
	var status models.SessionStatus
	err := c.do(ctx, func() error {
		c.settle()
		role, ok := c.team.RoleOf(actor)
		if !ok || !role.CanControl() {
			return fmt.Errorf("%w: %s may not control this session", ErrForbidden, actor)
		}

		var err error
		switch action {
		case ActionStart:
			err = c.start(actor)
		case ActionPause:
			err = c.pause(actor)
		case ActionResume:
			err = c.resume(actor)
		case ActionEnd:
			err = c.end(actor)
		default:
			err = fmt.Errorf("%w: %q", ErrInvalidAction, action)
		}
		status = c.session.Status
		return err
	})
	return status, err
}

// SubmitIdeas records a member's ideas for roundNumber. The ideas are durable
// before SubmitIdeas returns.
func (c *Coordinator) SubmitIdeas(ctx context.Context, member uuid.UUID, roundNumber int, texts []string) ([]models.Idea, error) {
	var out []models.Idea
	err := c.do(ctx, func() error {
		c.settle()
		var err error
		out, err = c.submit(member, roundNumber, texts)
		return err
	})
	return out, err
}

// Snapshot returns the session as viewer sees it.
func (c *Coordinator) Snapshot(ctx context.Context, viewer uuid.UUID) (Snapshot, error) {
	var out Snapshot
	err := c.do(ctx, func() error {
		c.settle()
		role, ok := c.team.RoleOf(viewer)
		if !ok {
			return fmt.Errorf("%w: %s is not part of this session", ErrForbidden, viewer)
		}
		out = c.snapshot(viewer, role)
		return nil
	})
	return out, err
}

// Rounds returns every round opened so far. Any participant may list them.
func (c *Coordinator) Rounds(ctx context.Context, viewer uuid.UUID) ([]models.Round, error) {
	var out []models.Round
	err := c.do(ctx, func() error {
		c.settle()
		if _, ok := c.team.RoleOf(viewer); !ok {
			return fmt.Errorf("%w: %s is not part of this session", ErrForbidden, viewer)
		}
		out = make([]models.Round, len(c.rounds))
		for i, e := range c.rounds {
			out[i] = e.Model()
		}
		return nil
	})
	return out, err
}

// Ideas returns all ideas grouped by round. Leader and manager only.
func (c *Coordinator) Ideas(ctx context.Context, viewer uuid.UUID) ([]RoundIdeas, error) {
	var out []RoundIdeas
	err := c.do(ctx, func() error {
		c.settle()
		if role, ok := c.team.RoleOf(viewer); !ok || !role.CanControl() {
			return fmt.Errorf("%w: %s may not read all ideas", ErrForbidden, viewer)
		}
		out = make([]RoundIdeas, len(c.rounds))
		for i, e := range c.rounds {
			out[i] = RoundIdeas{RoundNumber: e.Number(), Ideas: c.named(e.Tracker().Ideas())}
		}
		return nil
	})
	return out, err
}

// Log returns the audit trail. Leader and manager only.
func (c *Coordinator) Log(ctx context.Context, viewer uuid.UUID) ([]models.SessionLog, error) {
	err := c.do(ctx, func() error {
		if role, ok := c.team.RoleOf(viewer); !ok || !role.CanControl() {
			return fmt.Errorf("%w: %s may not read the session log", ErrForbidden, viewer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.deps.Store.ListLogs(ctx, c.id)
}

func (c *Coordinator) start(actor uuid.UUID) error {
	if c.session.Status != models.SessionStatusPending {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidSessionTransition, c.session.Status)
	}

	e, err := c.openRound(1)
	if err != nil {
		return err
	}
	prev := c.session
	c.session.Status = models.SessionStatusRunning
	c.session.CurrentRound = 1
	c.session.UpdatedAt = c.deps.Clock.Now()
	if err := c.persist(e.Model()); err != nil {
		e.Abort()
		c.session = prev
		return err
	}
	c.adopt(e)

	log.Info().
		Str("session_id", c.session.ID.String()).
		Int("round_count", c.session.RoundCount).
		Msg("session started")

	c.appendLog(&actor, models.ActionStarted, nil)
	c.emit(events.TypeSessionStarted, uuid.Nil, events.SessionStartedPayload{
		SessionID:   c.session.ID.String(),
		TeamID:      c.session.TeamID.String(),
		TopicID:     c.session.TopicID.String(),
		RoundCount:  c.session.RoundCount,
		DurationSec: c.session.RoundDurationSec,
		StartedAt:   c.session.UpdatedAt,
	})
	c.announceRound()
	return nil
}

func (c *Coordinator) pause(actor uuid.UUID) error {
	if c.session.Status != models.SessionStatusRunning {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidSessionTransition, c.session.Status)
	}
	if err := c.current.Pause(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionTransition, err)
	}
	c.session.Status = models.SessionStatusPaused
	c.session.UpdatedAt = c.deps.Clock.Now()
	if err := c.persist(c.current.Model()); err != nil {
		_ = c.current.Resume()
		c.session.Status = models.SessionStatusRunning
		return err
	}

	remaining := c.current.Remaining()
	log.Info().
		Str("session_id", c.session.ID.String()).
		Int("round", c.current.Number()).
		Int("remaining", remaining).
		Msg("session paused")

	c.appendLog(&actor, models.ActionPaused, map[string]int{"round": c.current.Number(), "remaining_seconds": remaining})
	c.emit(events.TypeSessionPaused, uuid.Nil, events.SessionPausedPayload{
		SessionID:        c.session.ID.String(),
		RoundNumber:      c.current.Number(),
		RemainingSeconds: remaining,
		PausedAt:         c.session.UpdatedAt,
		PausedBy:         actor.String(),
	})
	return nil
}

func (c *Coordinator) resume(actor uuid.UUID) error {
	if c.session.Status != models.SessionStatusPaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidSessionTransition, c.session.Status)
	}
	if err := c.current.Resume(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionTransition, err)
	}
	c.session.Status = models.SessionStatusRunning
	c.session.UpdatedAt = c.deps.Clock.Now()
	if err := c.persist(c.current.Model()); err != nil {
		_ = c.current.Pause()
		c.session.Status = models.SessionStatusPaused
		return err
	}

	remaining := c.current.Remaining()
	log.Info().
		Str("session_id", c.session.ID.String()).
		Int("round", c.current.Number()).
		Int("remaining", remaining).
		Msg("session resumed")

	c.appendLog(&actor, models.ActionResumed, map[string]int{"round": c.current.Number(), "remaining_seconds": remaining})
	c.emit(events.TypeSessionResumed, uuid.Nil, events.SessionResumedPayload{
		SessionID:        c.session.ID.String(),
		RoundNumber:      c.current.Number(),
		RemainingSeconds: remaining,
		ResumedAt:        c.session.UpdatedAt,
	})
	return nil
}

func (c *Coordinator) end(actor uuid.UUID) error {
	if c.session.Status != models.SessionStatusRunning && c.session.Status != models.SessionStatusPaused {
		return fmt.Errorf("%w: cannot end from %s", ErrInvalidSessionTransition, c.session.Status)
	}
	if err := c.current.Close(models.CloseReasonSessionEnded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionTransition, err)
	}
	c.appendLog(&actor, models.ActionEnded, map[string]int{"round": c.current.Number()})
	c.advance()
	return nil
}

func (c *Coordinator) submit(member uuid.UUID, roundNumber int, texts []string) ([]models.Idea, error) {
	role, ok := c.team.RoleOf(member)
	if !ok || !role.CanSubmit() || !c.rotation.Contains(member) {
		return nil, fmt.Errorf("%w: %s may not submit ideas", ErrForbidden, member)
	}
	if c.session.Status != models.SessionStatusRunning {
		return nil, fmt.Errorf("%w: status is %s", ErrSessionNotRunning, c.session.Status)
	}
	if roundNumber != c.session.CurrentRound {
		return nil, fmt.Errorf("%w: got %d, current is %d", ErrRoundMismatch, roundNumber, c.session.CurrentRound)
	}

	cleaned, err := c.current.CheckSubmission(member, texts)
	if err != nil {
		return nil, err
	}

	tracker := c.current.Tracker()
	var passedFrom *uuid.UUID
	if donor, ok := tracker.Donor(member); ok && len(tracker.PreviousRoundIdeasFor(member)) > 0 {
		passedFrom = &donor
	}

	now := c.deps.Clock.Now()
	ideas := make([]models.Idea, len(cleaned))
	for i, text := range cleaned {
		ideas[i] = models.Idea{
			ID:          uuid.New(),
			SessionID:   c.session.ID,
			RoundID:     c.current.ID(),
			RoundNumber: c.current.Number(),
			AuthorID:    member,
			AuthorName:  c.team.DisplayName(member),
			Position:    i + 1,
			Text:        text,
			PassedFrom:  passedFrom,
			CreatedAt:   now,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.deps.Store.InsertIdeas(ctx, ideas); err != nil {
		return nil, fmt.Errorf("failed to store ideas: %w", err)
	}

	closed, err := c.current.RecordSubmission(member, ideas)
	if err != nil {
		// the round was checked above, so this is a bug rather than a user error
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	log.Info().
		Str("session_id", c.session.ID.String()).
		Str("user_id", member.String()).
		Int("round", roundNumber).
		Msg("ideas submitted")

	c.appendLog(&member, models.ActionIdeasSubmitted, map[string]int{"round": roundNumber})
	c.emit(events.TypeMemberSubmitted, uuid.Nil, events.MemberSubmittedPayload{
		UserID:      member.String(),
		UserName:    c.team.DisplayName(member),
		RoundNumber: roundNumber,
		SubmittedAt: now,
	})
	c.emit(events.TypeSessionState, member, c.snapshot(member, role))

	if closed {
		c.advance()
	}
	return ideas, nil
}

// settle closes the current round if its timer ran out and the expiry
// command has not been processed yet. Every command calls it first so no
// action ever sees a round that is past its deadline.
func (c *Coordinator) settle() {
	if c.current != nil && c.current.Expired() && c.current.Expire() {
		c.advance()
	}
}

// onTimerTick and onTimerExpiry run on a countdown goroutine.
func (c *Coordinator) onTimerTick(number, remaining int) {
	c.post(func() {
		if c.current == nil || c.current.Number() != number || c.current.State() != round.StateRunning {
			return
		}
		c.emit(events.TypeTimerTick, uuid.Nil, events.TimerTickPayload{
			RoundNumber:      number,
			RemainingSeconds: remaining,
			TimerState:       models.TimerStateRunning,
		})
	})
}

func (c *Coordinator) onTimerExpiry(number int) {
	c.post(func() {
		if c.current == nil || c.current.Number() != number {
			return
		}
		if c.current.Expire() {
			c.advance()
		}
	})
}

// advance runs once for every closed round: it records the close, then
// either opens the next round or completes the session.
func (c *Coordinator) advance() {
	closed := c.current
	model := closed.Model()
	tracker := closed.Tracker()
	submitted := 0
	for _, st := range tracker.Statuses() {
		if st.Submitted {
			submitted++
		}
	}

	c.appendLog(nil, models.ActionRoundClosed, map[string]any{
		"round":     model.RoundNumber,
		"reason":    model.CloseReason,
		"submitted": submitted,
	})
	c.emit(events.TypeRoundEnd, uuid.Nil, events.RoundEndPayload{
		RoundNumber: model.RoundNumber,
		Reason:      model.CloseReason,
		EndedAt:     *model.EndTime,
		Submitted:   submitted,
		RosterSize:  len(c.rotation.Members()),
	})

	if model.RoundNumber >= c.session.RoundCount || model.CloseReason == models.CloseReasonSessionEnded {
		c.complete(model)
		return
	}

	next, err := c.openRound(model.RoundNumber + 1)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", c.session.ID.String()).
			Int("round", model.RoundNumber+1).
			Msg("failed to open round")
		c.complete(model)
		return
	}
	c.adopt(next)
	c.session.CurrentRound = next.Number()
	c.session.UpdatedAt = c.deps.Clock.Now()
	if err := c.persist(model, next.Model()); err != nil {
		// memory stays authoritative; the next successful save upserts both rounds
		log.Error().Err(err).Str("session_id", c.session.ID.String()).Msg("failed to persist round advance")
	}
	c.announceRound()
}

func (c *Coordinator) complete(last models.Round) {
	c.session.Status = models.SessionStatusCompleted
	c.session.UpdatedAt = c.deps.Clock.Now()
	if err := c.persist(last); err != nil {
		log.Error().Err(err).Str("session_id", c.session.ID.String()).Msg("failed to persist session completion")
	}

	endedEarly := last.CloseReason == models.CloseReasonSessionEnded
	log.Info().
		Str("session_id", c.session.ID.String()).
		Int("rounds_played", last.RoundNumber).
		Bool("ended_early", endedEarly).
		Msg("session completed")

	c.appendLog(nil, models.ActionCompleted, map[string]any{"rounds_played": last.RoundNumber, "ended_early": endedEarly})
	c.emit(events.TypeSessionCompleted, uuid.Nil, events.SessionCompletedPayload{
		SessionID:    c.session.ID.String(),
		CompletedAt:  c.session.UpdatedAt,
		RoundsPlayed: last.RoundNumber,
		EndedEarly:   endedEarly,
	})
	c.pushSnapshots()

	if c.onComplete != nil {
		go c.onComplete(c.session.ID)
	}
}

func (c *Coordinator) openRound(number int) (*round.Engine, error) {
	e := round.NewEngine(c.roundConfig(uuid.Nil, number))
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Coordinator) roundConfig(id uuid.UUID, number int) round.Config {
	var prev *submission.Tracker
	if c.current != nil {
		prev = c.current.Tracker()
	}
	return round.Config{
		ID:           id,
		SessionID:    c.session.ID,
		Number:       number,
		DurationSec:  c.session.RoundDurationSec,
		Tracker:      submission.NewTracker(number, c.rotation, prev),
		Clock:        c.deps.Clock,
		TickInterval: c.deps.TickInterval,
		OnTick:       c.onTimerTick,
		OnExpire:     c.onTimerExpiry,
	}
}

func (c *Coordinator) adopt(e *round.Engine) {
	c.rounds = append(c.rounds, e)
	c.current = e
}

// announceRound tells everyone a round opened. Previous ideas differ per
// member, so each participant also gets their own snapshot.
func (c *Coordinator) announceRound() {
	c.emit(events.TypeRoundStart, uuid.Nil, events.RoundStartPayload{
		Round:                 c.current.Model(),
		TimerRemainingSeconds: c.current.Remaining(),
	})
	c.pushSnapshots()
}

func (c *Coordinator) pushSnapshots() {
	for _, id := range c.participants() {
		role, _ := c.team.RoleOf(id)
		c.emit(events.TypeSessionState, id, c.snapshot(id, role))
	}
}

func (c *Coordinator) participants() []uuid.UUID {
	out := c.rotation.Members()
	if c.team.Manager != nil && !c.rotation.Contains(c.team.Manager.UserID) {
		out = append(out, c.team.Manager.UserID)
	}
	return out
}

func (c *Coordinator) persist(rounds ...models.Round) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.deps.Store.SaveProgress(ctx, c.session, rounds...); err != nil {
		return fmt.Errorf("failed to save session progress: %w", err)
	}
	return nil
}

func (c *Coordinator) appendLog(actor *uuid.UUID, action models.SessionAction, payload any) {
	entry := models.SessionLog{
		ID:        uuid.New(),
		SessionID: c.session.ID,
		ActorID:   actor,
		Action:    action,
		CreatedAt: c.deps.Clock.Now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Warn().Err(err).Str("action", string(action)).Msg("failed to encode session log payload")
		} else {
			entry.Payload = raw
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.deps.Store.AppendLog(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("session_id", c.session.ID.String()).
			Str("action", string(action)).
			Msg("failed to append session log")
	}
}

func (c *Coordinator) emit(t events.Type, to uuid.UUID, payload any) {
	if c.deps.Sink == nil {
		return
	}
	c.deps.Sink.Publish(events.Event{
		Type:      t,
		SessionID: c.session.ID,
		UserID:    to,
		Payload:   payload,
		Timestamp: c.deps.Clock.Now(),
	})
}

// ID returns the session id.
func (c *Coordinator) ID() uuid.UUID {
	return c.id
}

// errStopped reports whether err means the coordinator went away under the caller.
func errStopped(err error) bool {
	return errors.Is(err, ErrCoordinatorStopped)
}
