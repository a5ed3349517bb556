package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/events"
	"github.com/mcdev12/brainstorm/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recordingSink) last(t events.Type) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock fakeClock
	store *store.Memory
	sink  *recordingSink
	reg   *Registry

	team                 models.Team
	topic                models.Topic
	a, b, c, manager     uuid.UUID
	outsider             uuid.UUID
	roundDurationSeconds int
}

// newHarness builds team {A leader, B, C members, M manager} and a topic.
func newHarness(t *testing.T, durationSec int) *harness {
	t.Helper()
	h := &harness{
		t:                    t,
		ctx:                  context.Background(),
		clock:                clockwork.NewFakeClock(),
		store:                store.NewMemory(),
		sink:                 &recordingSink{},
		a:                    uuid.New(),
		b:                    uuid.New(),
		c:                    uuid.New(),
		manager:              uuid.New(),
		outsider:             uuid.New(),
		roundDurationSeconds: durationSec,
	}
	h.team = models.Team{
		ID:      uuid.New(),
		Name:    "Falcons",
		Leader:  models.Member{UserID: h.a, DisplayName: "A"},
		Manager: &models.Member{UserID: h.manager, DisplayName: "M"},
		Members: []models.Member{
			{UserID: h.b, DisplayName: "B"},
			{UserID: h.c, DisplayName: "C"},
		},
	}
	h.topic = models.Topic{ID: uuid.New(), Title: "Reduce onboarding time"}
	h.store.PutTeam(h.team)
	h.store.PutTopic(h.topic)
	h.reg = h.newRegistry()
	return h
}

func (h *harness) newRegistry() *Registry {
	reg := NewRegistry(Config{
		Store:            h.store,
		Sink:             h.sink,
		Clock:            h.clock,
		TickInterval:     time.Second,
		RoundDurationSec: h.roundDurationSeconds,
	})
	h.t.Cleanup(reg.Close)
	return reg
}

func (h *harness) create(roundCount int) uuid.UUID {
	h.t.Helper()
	s, err := h.reg.Create(h.ctx, h.manager, CreateRequest{TeamID: h.team.ID, TopicID: h.topic.ID, RoundCount: roundCount})
	require.NoError(h.t, err)
	return s.ID
}

func (h *harness) start(sessionID uuid.UUID) {
	h.t.Helper()
	status, err := h.reg.Control(h.ctx, sessionID, h.a, ActionStart)
	require.NoError(h.t, err)
	require.Equal(h.t, models.SessionStatusRunning, status)
}

func ideasFor(member uuid.UUID, round int) []string {
	out := make([]string, 3)
	for i := range out {
		out[i] = fmt.Sprintf("%s round %d idea %d", member.String()[:8], round, i+1)
	}
	return out
}

func (h *harness) submit(sessionID, member uuid.UUID, round int) ([]models.Idea, error) {
	return h.reg.SubmitIdeas(h.ctx, sessionID, member, round, ideasFor(member, round))
}

func (h *harness) snapshot(sessionID, viewer uuid.UUID) Snapshot {
	h.t.Helper()
	s, err := h.reg.Snapshot(h.ctx, sessionID, viewer)
	require.NoError(h.t, err)
	return s
}

func roundOf(s Snapshot) int {
	if s.CurrentRound == nil {
		return 0
	}
	return s.CurrentRound.RoundNumber
}

// tick advances one second and waits until the session observes it.
func (h *harness) tick(sessionID uuid.UUID) {
	h.t.Helper()
	before := h.snapshot(sessionID, h.a)
	h.clock.Advance(time.Second)
	require.Eventually(h.t, func() bool {
		s := h.snapshot(sessionID, h.a)
		return s.TimerRemainingSeconds != before.TimerRemainingSeconds ||
			roundOf(s) != roundOf(before) ||
			s.Session.Status != before.Session.Status
	}, time.Second, time.Millisecond)
}

func texts(ideas []models.Idea) []string {
	out := make([]string, len(ideas))
	for i, idea := range ideas {
		out[i] = idea.Text
	}
	return out
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, 5)
	req := CreateRequest{TeamID: h.team.ID, TopicID: h.topic.ID}

	for _, n := range []int{0, 1, 11} {
		req.RoundCount = n
		_, err := h.reg.Create(h.ctx, h.manager, req)
		assert.ErrorIs(t, err, ErrInvalidRoundCount, "round count %d", n)
		assert.Equal(t, KindValidation, KindOf(err))
	}

	req.RoundCount = 3
	_, err := h.reg.Create(h.ctx, h.b, req)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.reg.Create(h.ctx, h.manager, CreateRequest{TeamID: uuid.New(), TopicID: h.topic.ID, RoundCount: 3})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	s, err := h.reg.Create(h.ctx, h.a, req)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPending, s.Status)
	assert.Equal(t, 5, s.RoundDurationSec)

	_, err = h.reg.Create(h.ctx, h.manager, req)
	assert.ErrorIs(t, err, ErrTeamAlreadyHasActiveSession)
	assert.Equal(t, KindStateConflict, KindOf(err))
}

func TestControl_Transitions(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)

	pending := h.snapshot(sid, h.a)
	assert.Nil(t, pending.CurrentRound)
	assert.True(t, pending.IsRoundLocked)
	assert.False(t, pending.CanSubmit)

	for _, action := range []Action{ActionPause, ActionResume, ActionEnd} {
		status, err := h.reg.Control(h.ctx, sid, h.manager, action)
		assert.ErrorIs(t, err, ErrInvalidSessionTransition, string(action))
		assert.Equal(t, models.SessionStatusPending, status)
	}

	_, err := h.reg.Control(h.ctx, sid, h.b, ActionStart)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.reg.Control(h.ctx, sid, h.outsider, ActionStart)
	assert.ErrorIs(t, err, ErrForbidden)

	h.start(sid)
	_, err = h.reg.Control(h.ctx, sid, h.a, ActionStart)
	assert.ErrorIs(t, err, ErrInvalidSessionTransition)
	_, err = h.reg.Control(h.ctx, sid, h.a, ActionResume)
	assert.ErrorIs(t, err, ErrInvalidSessionTransition)

	s := h.snapshot(sid, h.b)
	require.NotNil(t, s.CurrentRound)
	assert.Equal(t, 1, s.CurrentRound.RoundNumber)
	assert.Equal(t, models.TimerStateRunning, s.TimerState)
	assert.Equal(t, 5, s.TimerRemainingSeconds)
	assert.True(t, s.CanSubmit)
	assert.Equal(t, models.RoleMember, s.UserRole)
	assert.Equal(t, 1, h.sink.count(events.TypeRoundStart))
}

func TestAllSubmittedClosesRoundEarly(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	h.tick(sid)
	h.tick(sid)

	round1 := map[uuid.UUID][]string{}
	for _, m := range []uuid.UUID{h.a, h.b, h.c} {
		ideas, err := h.submit(sid, m, 1)
		require.NoError(t, err)
		require.Len(t, ideas, 3)
		round1[m] = texts(ideas)
	}

	s := h.snapshot(sid, h.b)
	assert.Equal(t, 2, s.Session.CurrentRound)
	assert.Equal(t, 2, roundOf(s))
	assert.Equal(t, 5, s.TimerRemainingSeconds, "next round starts with a full timer")
	assert.Equal(t, round1[h.a], texts(s.PreviousIdeas), "B builds on A")
	assert.Equal(t, round1[h.b], texts(h.snapshot(sid, h.c).PreviousIdeas), "C builds on B")
	assert.Equal(t, round1[h.c], texts(h.snapshot(sid, h.a).PreviousIdeas), "A builds on C")
	assert.Empty(t, h.snapshot(sid, h.manager).PreviousIdeas)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.b)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, models.CloseReasonAllSubmitted, rounds[0].CloseReason)
	assert.Equal(t, models.TimerStateFinished, rounds[0].TimerState)

	ev, ok := h.sink.last(events.TypeRoundEnd)
	require.True(t, ok)
	end := ev.Payload.(events.RoundEndPayload)
	assert.Equal(t, 1, end.RoundNumber)
	assert.Equal(t, 3, end.Submitted)

	ideas, err := h.submit(sid, h.b, 2)
	require.NoError(t, err)
	require.NotNil(t, ideas[0].PassedFrom)
	assert.Equal(t, h.a, *ideas[0].PassedFrom)
}

func TestTimerExpiryClosesIncompleteRound(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	_, err := h.submit(sid, h.a, 1)
	require.NoError(t, err)
	_, err = h.submit(sid, h.b, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.tick(sid)
	}

	s := h.snapshot(sid, h.a)
	assert.Equal(t, 2, roundOf(s))
	assert.Equal(t, models.SessionStatusRunning, s.Session.Status)
	// C skipped round 1, so A has nothing to build on
	assert.Empty(t, s.PreviousIdeas)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.a)
	require.NoError(t, err)
	assert.Equal(t, models.CloseReasonTimerExpired, rounds[0].CloseReason)

	ideas, err := h.reg.Ideas(h.ctx, sid, h.manager)
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Len(t, ideas[0].Ideas, 6)
	for _, idea := range ideas[0].Ideas {
		assert.NotEqual(t, h.c, idea.AuthorID)
	}

	// the late member can not submit into the closed round
	_, err = h.submit(sid, h.c, 1)
	assert.ErrorIs(t, err, ErrRoundMismatch)

	ideasOfA, err := h.submit(sid, h.a, 2)
	require.NoError(t, err)
	assert.Nil(t, ideasOfA[0].PassedFrom, "A's donor C wrote nothing to pass on")
	assert.Equal(t, 1, h.sink.count(events.TypeRoundEnd))
}

func TestPauseFreezesAndResumeContinues(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	h.tick(sid)
	h.tick(sid)
	require.Equal(t, 3, h.snapshot(sid, h.a).TimerRemainingSeconds)

	status, err := h.reg.Control(h.ctx, sid, h.manager, ActionPause)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, status)

	h.clock.Advance(10 * time.Second)
	assert.Never(t, func() bool {
		s := h.snapshot(sid, h.a)
		return s.TimerRemainingSeconds != 3 || roundOf(s) != 1
	}, 50*time.Millisecond, 5*time.Millisecond)

	paused := h.snapshot(sid, h.b)
	assert.Equal(t, models.TimerStatePaused, paused.TimerState)
	assert.False(t, paused.CanSubmit)
	_, err = h.submit(sid, h.b, 1)
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	status, err = h.reg.Control(h.ctx, sid, h.manager, ActionResume)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRunning, status)
	assert.Equal(t, 3, h.snapshot(sid, h.a).TimerRemainingSeconds)

	h.tick(sid)
	assert.Equal(t, 2, h.snapshot(sid, h.a).TimerRemainingSeconds)

	ev, ok := h.sink.last(events.TypeSessionPaused)
	require.True(t, ok)
	assert.Equal(t, 3, ev.Payload.(events.SessionPausedPayload).RemainingSeconds)
}

func TestSubmitRejections(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)

	_, err := h.submit(sid, h.a, 1)
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	h.start(sid)

	_, err = h.submit(sid, h.manager, 1)
	assert.ErrorIs(t, err, ErrForbidden, "managers observe only")
	_, err = h.submit(sid, h.outsider, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.submit(sid, h.a, 2)
	assert.ErrorIs(t, err, ErrRoundMismatch)

	bad := [][]string{
		{"one", "two", "three", "four"},
		{"one", "two"},
		{"one", "  ", "three"},
		{"Same idea", "same IDEA ", "three"},
	}
	for _, ideas := range bad {
		_, err = h.reg.SubmitIdeas(h.ctx, sid, h.a, 1, ideas)
		assert.ErrorIs(t, err, ErrInvalidIdeaSet)
		assert.Equal(t, KindValidation, KindOf(err))
	}
	assert.True(t, h.snapshot(sid, h.a).CanSubmit, "rejected submissions leave no trace")

	_, err = h.submit(sid, h.a, 1)
	require.NoError(t, err)
	_, err = h.submit(sid, h.a, 1)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	s := h.snapshot(sid, h.a)
	assert.False(t, s.CanSubmit)
	assert.Len(t, s.MyIdeas, 3)
	assert.Equal(t, "A", s.MyIdeas[0].AuthorName)

	confirm, ok := h.sink.last(events.TypeSessionState)
	require.True(t, ok)
	assert.Equal(t, h.a, confirm.UserID)
	assert.Equal(t, 1, h.sink.count(events.TypeMemberSubmitted))
}

func TestSessionCompletesAfterLastRound(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(6)
	h.start(sid)

	for r := 1; r <= 6; r++ {
		for _, m := range []uuid.UUID{h.a, h.b, h.c} {
			_, err := h.submit(sid, m, r)
			require.NoError(t, err, "round %d", r)
		}
	}

	s := h.snapshot(sid, h.a)
	assert.Equal(t, models.SessionStatusCompleted, s.Session.Status)
	assert.Equal(t, 6, s.Session.CurrentRound)
	assert.True(t, s.IsRoundLocked)
	assert.False(t, s.CanSubmit)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.a)
	require.NoError(t, err)
	assert.Len(t, rounds, 6, "no round 7")

	_, err = h.submit(sid, h.a, 7)
	assert.ErrorIs(t, err, ErrSessionNotRunning)
	_, err = h.reg.Control(h.ctx, sid, h.a, ActionPause)
	assert.ErrorIs(t, err, ErrInvalidSessionTransition)

	ev, ok := h.sink.last(events.TypeSessionCompleted)
	require.True(t, ok)
	done := ev.Payload.(events.SessionCompletedPayload)
	assert.Equal(t, 6, done.RoundsPlayed)
	assert.False(t, done.EndedEarly)
	assert.Equal(t, 1, h.sink.count(events.TypeSessionCompleted))

	// the team is free to run another session
	_, err = h.reg.Create(h.ctx, h.manager, CreateRequest{TeamID: h.team.ID, TopicID: h.topic.ID, RoundCount: 2})
	assert.NoError(t, err)
}

func TestEndWhilePaused(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	_, err := h.reg.Control(h.ctx, sid, h.a, ActionPause)
	require.NoError(t, err)
	status, err := h.reg.Control(h.ctx, sid, h.manager, ActionEnd)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, status)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.a)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, models.CloseReasonSessionEnded, rounds[0].CloseReason)

	ev, ok := h.sink.last(events.TypeSessionCompleted)
	require.True(t, ok)
	assert.True(t, ev.Payload.(events.SessionCompletedPayload).EndedEarly)

	logs, err := h.reg.Log(h.ctx, sid, h.manager)
	require.NoError(t, err)
	var actions []models.SessionAction
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []models.SessionAction{
		models.ActionCreated, models.ActionStarted, models.ActionPaused,
		models.ActionEnded, models.ActionRoundClosed, models.ActionCompleted,
	}, actions)

	_, err = h.reg.Log(h.ctx, sid, h.b)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentLastSubmissionsAdvanceOnce(t *testing.T) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	var wg sync.WaitGroup
	for _, m := range []uuid.UUID{h.a, h.b, h.c} {
		wg.Add(1)
		go func(m uuid.UUID) {
			defer wg.Done()
			_, err := h.submit(sid, m, 1)
			assert.NoError(t, err)
		}(m)
	}
	wg.Wait()

	// the stopped round-1 timer must not close round 2
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.sink.count(events.TypeRoundEnd))
	assert.Equal(t, 2, roundOf(h.snapshot(sid, h.a)))
}

func (r *recordingSink) roundEnds(round int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if p, ok := e.Payload.(events.RoundEndPayload); ok && e.Type == events.TypeRoundEnd && p.RoundNumber == round {
			n++
		}
	}
	return n
}

// lastSubmitMeetsExpiry brings round 1 to one second left with only C
// missing, then lets race run C's submission against the final tick.
func lastSubmitMeetsExpiry(t *testing.T, race func(h *harness, sid uuid.UUID) error) {
	h := newHarness(t, 5)
	sid := h.create(3)
	h.start(sid)

	_, err := h.submit(sid, h.a, 1)
	require.NoError(t, err)
	_, err = h.submit(sid, h.b, 1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		h.tick(sid)
	}
	require.Equal(t, 1, h.snapshot(sid, h.a).TimerRemainingSeconds)

	raceErr := race(h, sid)
	if raceErr != nil {
		assert.ErrorIs(t, raceErr, ErrRoundMismatch, "a late submission may only lose to the expiry")
	}

	require.Eventually(t, func() bool {
		return roundOf(h.snapshot(sid, h.a)) == 2
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		return h.sink.count(events.TypeRoundEnd) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 1, h.sink.roundEnds(1))

	s := h.snapshot(sid, h.a)
	assert.Equal(t, 2, s.Session.CurrentRound)
	assert.Equal(t, models.SessionStatusRunning, s.Session.Status)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.a)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	if raceErr == nil {
		assert.Equal(t, models.CloseReasonAllSubmitted, rounds[0].CloseReason)
	} else {
		assert.Equal(t, models.CloseReasonTimerExpired, rounds[0].CloseReason)
	}
}

func TestLastSubmissionRacesTimerExpiry(t *testing.T) {
	for i := 0; i < 25; i++ {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			lastSubmitMeetsExpiry(t, func(h *harness, sid uuid.UUID) error {
				var (
					wg  sync.WaitGroup
					err error
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err = h.submit(sid, h.c, 1)
				}()
				go func() {
					defer wg.Done()
					h.clock.Advance(time.Second)
				}()
				wg.Wait()
				return err
			})
		})
	}
}

func TestSubmitRightAfterFinalTickAdvancesOnce(t *testing.T) {
	for i := 0; i < 25; i++ {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			lastSubmitMeetsExpiry(t, func(h *harness, sid uuid.UUID) error {
				h.clock.Advance(time.Second)
				_, err := h.submit(sid, h.c, 1)
				return err
			})
		})
	}
}

func TestRecoveryFromStore(t *testing.T) {
	h := newHarness(t, 60)
	sid := h.create(3)
	h.start(sid)
	_, err := h.submit(sid, h.a, 1)
	require.NoError(t, err)

	h.reg.Close()
	h.clock.Advance(20 * time.Second)

	h.reg = h.newRegistry()
	s := h.snapshot(sid, h.a)
	assert.Equal(t, 1, roundOf(s))
	assert.Equal(t, 40, s.TimerRemainingSeconds)
	assert.Len(t, s.MyIdeas, 3)
	assert.False(t, s.CanSubmit)
	assert.True(t, h.snapshot(sid, h.b).CanSubmit)

	h.reg.Close()
	h.clock.Advance(2 * time.Minute)

	h.reg = h.newRegistry()
	s = h.snapshot(sid, h.b)
	assert.Equal(t, 2, roundOf(s), "an overdue round closes on load")
	assert.Equal(t, 60, s.TimerRemainingSeconds)

	rounds, err := h.reg.Rounds(h.ctx, sid, h.a)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, models.CloseReasonTimerExpired, rounds[0].CloseReason)
}

type fakePresence struct {
	mu    sync.Mutex
	count int
}

func (p *fakePresence) ConnectionCount(uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *fakePresence) set(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = n
}

func TestReleaseWaitsForDrainedConnections(t *testing.T) {
	h := newHarness(t, 5)
	presence := &fakePresence{count: 1}
	h.reg.SetPresence(presence)

	sid := h.create(3)
	h.start(sid)
	assert.Equal(t, 1, h.reg.Len())

	_, err := h.reg.Control(h.ctx, sid, h.a, ActionEnd)
	require.NoError(t, err)
	assert.Never(t, func() bool { return h.reg.Len() == 0 }, 50*time.Millisecond, 5*time.Millisecond)

	presence.set(0)
	h.reg.Release(sid)
	assert.Equal(t, 0, h.reg.Len())

	// a released session still answers from storage
	s := h.snapshot(sid, h.manager)
	assert.Equal(t, models.SessionStatusCompleted, s.Session.Status)
}
