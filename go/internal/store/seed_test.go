package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedIntoMemory(t *testing.T) {
	seed, err := LoadSeed("../assets/teams.json")
	require.NoError(t, err)
	require.Len(t, seed.Teams, 2)
	require.Len(t, seed.Topics, 2)

	m := NewMemory()
	m.Load(seed)

	ctx := context.Background()
	team, err := m.GetTeam(ctx, seed.Teams[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", team.Leader.DisplayName)
	require.NotNil(t, team.Manager)
	assert.Len(t, team.Roster(), 6, "leader plus five members, manager excluded")

	ops, err := m.GetTeam(ctx, seed.Teams[1].ID)
	require.NoError(t, err)
	assert.Nil(t, ops.Manager)

	topic, err := m.GetTopic(ctx, seed.Topics[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Fewer pages at night", topic.Title)

	_, err = m.GetTopic(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = LoadSeed("does-not-exist.json")
	assert.Error(t, err)
}
