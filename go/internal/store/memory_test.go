package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(teamID uuid.UUID, status models.SessionStatus) models.Session {
	now := time.Now()
	return models.Session{
		ID:               uuid.New(),
		TeamID:           teamID,
		TopicID:          uuid.New(),
		Status:           status,
		CurrentRound:     1,
		RoundCount:       3,
		RoundDurationSec: 300,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestMemory_OneActiveSessionPerTeam(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	teamID := uuid.New()

	first := newSession(teamID, models.SessionStatusPending)
	require.NoError(t, m.CreateSession(ctx, first))
	assert.ErrorIs(t, m.CreateSession(ctx, newSession(teamID, models.SessionStatusPending)), ErrActiveSessionExists)

	// other teams are unaffected
	require.NoError(t, m.CreateSession(ctx, newSession(uuid.New(), models.SessionStatusPending)))

	first.Status = models.SessionStatusCompleted
	require.NoError(t, m.SaveProgress(ctx, first))
	require.NoError(t, m.CreateSession(ctx, newSession(teamID, models.SessionStatusPending)))
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetTeam(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetTopic(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.SaveProgress(ctx, newSession(uuid.New(), models.SessionStatusRunning)), ErrNotFound)
}

func TestMemory_SaveProgressUpsertsRounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := newSession(uuid.New(), models.SessionStatusRunning)
	require.NoError(t, m.CreateSession(ctx, s))

	r2 := models.Round{ID: uuid.New(), SessionID: s.ID, RoundNumber: 2, TimerState: models.TimerStateRunning}
	r1 := models.Round{ID: uuid.New(), SessionID: s.ID, RoundNumber: 1, TimerState: models.TimerStateRunning}
	require.NoError(t, m.SaveProgress(ctx, s, r2, r1))

	end := time.Now()
	r1.TimerState = models.TimerStateFinished
	r1.EndTime = &end
	require.NoError(t, m.SaveProgress(ctx, s, r1))

	rounds, err := m.ListRounds(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.True(t, rounds[0].Closed())
	assert.Equal(t, 2, rounds[1].RoundNumber)
}

func TestMemory_ListsReturnCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sessionID := uuid.New()

	require.NoError(t, m.InsertIdeas(ctx, []models.Idea{{ID: uuid.New(), SessionID: sessionID, Text: "a"}}))
	ideas, err := m.ListIdeas(ctx, sessionID)
	require.NoError(t, err)
	ideas[0].Text = "changed"

	again, err := m.ListIdeas(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Text)
}
