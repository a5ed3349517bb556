package round

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock   interface{ Advance(time.Duration) }
	engine  *Engine
	roster  []uuid.UUID
	expired atomic.Int32
}

func newFixture(t *testing.T, members int, durationSec int) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClock()

	roster := make([]uuid.UUID, members)
	for i := range roster {
		roster[i] = uuid.New()
	}

	f := &fixture{clock: fc, roster: roster}
	f.engine = NewEngine(Config{
		SessionID:    uuid.New(),
		Number:       1,
		DurationSec:  durationSec,
		Tracker:      submission.NewTracker(1, submission.NewRotation(roster), nil),
		Clock:        fc,
		TickInterval: time.Second,
		OnExpire:     func(int) { f.expired.Add(1) },
	})
	return f
}

func threeIdeas(author uuid.UUID) []models.Idea {
	out := make([]models.Idea, 3)
	for i := range out {
		out[i] = models.Idea{ID: uuid.New(), AuthorID: author, RoundNumber: 1, Position: i + 1, Text: "idea"}
	}
	return out
}

func TestEngine_StartsRunning(t *testing.T) {
	f := newFixture(t, 2, 300)

	assert.Equal(t, StatePendingStart, f.engine.State())
	require.NoError(t, f.engine.Start())
	assert.Equal(t, StateRunning, f.engine.State())
	assert.Equal(t, models.TimerStateRunning, f.engine.TimerState())
	assert.Equal(t, 300, f.engine.Remaining())

	assert.ErrorIs(t, f.engine.Start(), ErrInvalidTransition)
}

func TestEngine_ClosesWhenAllSubmitted(t *testing.T) {
	f := newFixture(t, 2, 5)
	require.NoError(t, f.engine.Start())

	closed, err := f.engine.RecordSubmission(f.roster[0], threeIdeas(f.roster[0]))
	require.NoError(t, err)
	assert.False(t, closed)

	closed, err = f.engine.RecordSubmission(f.roster[1], threeIdeas(f.roster[1]))
	require.NoError(t, err)
	assert.True(t, closed)

	assert.Equal(t, StateClosed, f.engine.State())
	assert.Equal(t, models.CloseReasonAllSubmitted, f.engine.CloseReason())
	assert.Equal(t, 0, f.engine.Remaining())

	// the stopped timer must never report an expiry for this round
	f.clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return f.expired.Load() != 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestEngine_ClosesAtMostOnce(t *testing.T) {
	f := newFixture(t, 1, 5)
	require.NoError(t, f.engine.Start())

	assert.True(t, f.engine.Expire())
	assert.False(t, f.engine.Expire())
	assert.ErrorIs(t, f.engine.Close(models.CloseReasonSessionEnded), ErrRoundClosed)
	assert.Equal(t, models.CloseReasonTimerExpired, f.engine.CloseReason())

	_, err := f.engine.RecordSubmission(f.roster[0], threeIdeas(f.roster[0]))
	assert.ErrorIs(t, err, ErrRoundClosed)
	_, err = f.engine.CheckSubmission(f.roster[0], []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrRoundClosed)
}

func TestEngine_TimerExpiryIsSignalled(t *testing.T) {
	f := newFixture(t, 2, 2)
	require.NoError(t, f.engine.Start())

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.engine.Remaining() == 1 }, time.Second, time.Millisecond)
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.expired.Load() == 1 }, time.Second, time.Millisecond)

	assert.True(t, f.engine.Expired())
	assert.True(t, f.engine.Expire())
	assert.False(t, f.engine.Expired())
}

func TestEngine_PauseResume(t *testing.T) {
	f := newFixture(t, 2, 5)
	require.NoError(t, f.engine.Start())

	assert.ErrorIs(t, f.engine.Resume(), ErrInvalidTransition)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.engine.Remaining() == 4 }, time.Second, time.Millisecond)

	require.NoError(t, f.engine.Pause())
	assert.Equal(t, models.TimerStatePaused, f.engine.TimerState())
	assert.ErrorIs(t, f.engine.Pause(), ErrInvalidTransition)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.engine.Resume())
	assert.Equal(t, 4, f.engine.Remaining())

	model := f.engine.Model()
	assert.Equal(t, 30, model.PausedSeconds)
	assert.Nil(t, model.PausedAt)
	assert.Nil(t, model.EndTime)
}

func TestEngine_RestoreComputesRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	now := fc.Now()
	roster := []uuid.UUID{uuid.New()}
	cfg := Config{
		Number:      2,
		DurationSec: 60,
		Tracker:     submission.NewTracker(2, submission.NewRotation(roster), nil),
		Clock:       fc,
	}

	t.Run("running", func(t *testing.T) {
		e := NewEngine(cfg)
		expired, err := e.Restore(models.Round{
			StartTime:     now.Add(-50 * time.Second),
			PausedSeconds: 20,
			TimerState:    models.TimerStateRunning,
		})
		require.NoError(t, err)
		assert.False(t, expired)
		assert.Equal(t, StateRunning, e.State())
		assert.Equal(t, 30, e.Remaining())
		e.Abort()
	})

	t.Run("paused", func(t *testing.T) {
		e := NewEngine(cfg)
		pausedAt := now.Add(-100 * time.Second)
		expired, err := e.Restore(models.Round{
			StartTime:  now.Add(-110 * time.Second),
			PausedAt:   &pausedAt,
			TimerState: models.TimerStatePaused,
		})
		require.NoError(t, err)
		assert.False(t, expired)
		assert.Equal(t, StatePaused, e.State())
		assert.Equal(t, 50, e.Remaining())
	})

	t.Run("overdue", func(t *testing.T) {
		e := NewEngine(cfg)
		expired, err := e.Restore(models.Round{
			StartTime:  now.Add(-5 * time.Minute),
			TimerState: models.TimerStateRunning,
		})
		require.NoError(t, err)
		assert.True(t, expired)
		assert.True(t, e.Expire())
	})
}
