package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type advancer interface {
	Advance(d time.Duration)
}

func advanceTo(t *testing.T, fc advancer, cd *Countdown, want int) {
	t.Helper()
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return cd.Remaining() == want }, time.Second, time.Millisecond)
}

func TestCountdown_TicksDownAndExpiresOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()

	var expired atomic.Int32
	var mu sync.Mutex
	var ticks []int
	cd := NewCountdown(fc, time.Second, Hooks{
		OnTick: func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		OnExpire: func() { expired.Add(1) },
	})

	require.NoError(t, cd.Start(3))
	assert.Equal(t, StateRunning, cd.State())
	assert.Equal(t, 3, cd.Remaining())

	advanceTo(t, fc, cd, 2)
	advanceTo(t, fc, cd, 1)
	advanceTo(t, fc, cd, 0)

	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateFinished, cd.State())

	// more time passing never drives remaining negative or re-fires expiry
	fc.Advance(5 * time.Second)
	assert.Never(t, func() bool { return expired.Load() != 1 || cd.Remaining() != 0 }, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1, 0}, ticks)
}

func TestCountdown_PauseFreezesAndResumeContinues(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc, time.Second, Hooks{})

	require.NoError(t, cd.Start(5))
	advanceTo(t, fc, cd, 4)
	advanceTo(t, fc, cd, 3)

	require.NoError(t, cd.Pause())
	assert.Equal(t, StatePaused, cd.State())

	fc.Advance(10 * time.Second)
	assert.Never(t, func() bool { return cd.Remaining() != 3 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, cd.Resume())
	assert.Equal(t, 3, cd.Remaining(), "resume must not reset to the full duration")
	advanceTo(t, fc, cd, 2)
}

func TestCountdown_InvalidTransitions(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc, time.Second, Hooks{})

	assert.ErrorIs(t, cd.Pause(), ErrInvalidState)
	assert.ErrorIs(t, cd.Resume(), ErrInvalidState)
	assert.ErrorIs(t, cd.Start(0), ErrInvalidDuration)

	require.NoError(t, cd.Start(2))
	assert.ErrorIs(t, cd.Start(2), ErrInvalidState)
	assert.ErrorIs(t, cd.Resume(), ErrInvalidState)
}

func TestCountdown_StopDoesNotExpire(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var expired atomic.Int32
	cd := NewCountdown(fc, time.Second, Hooks{OnExpire: func() { expired.Add(1) }})

	require.NoError(t, cd.Start(2))
	cd.Stop()
	cd.Stop()

	fc.Advance(5 * time.Second)
	assert.Never(t, func() bool { return expired.Load() != 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, StateFinished, cd.State())
	assert.Equal(t, 2, cd.Remaining())
}

func TestCountdown_StartPaused(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc, time.Second, Hooks{})

	require.NoError(t, cd.StartPaused(42))
	assert.Equal(t, StatePaused, cd.State())
	assert.Equal(t, 42, cd.Remaining())

	require.NoError(t, cd.Resume())
	advanceTo(t, fc, cd, 41)
}
