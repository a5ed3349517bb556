package submission

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ideasFor(author uuid.UUID, round int, texts ...string) []models.Idea {
	out := make([]models.Idea, len(texts))
	for i, text := range texts {
		out[i] = models.Idea{ID: uuid.New(), AuthorID: author, RoundNumber: round, Position: i + 1, Text: text}
	}
	return out
}

func TestTracker_CompleteOnlyWhenEveryoneSubmitted(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	tr := NewTracker(1, NewRotation([]uuid.UUID{a, b, c}), nil)
	now := time.Now()

	assert.False(t, tr.IsComplete())

	require.NoError(t, tr.Record(a, ideasFor(a, 1, "1", "2", "3"), now))
	require.NoError(t, tr.Record(b, ideasFor(b, 1, "1", "2", "3"), now))
	assert.False(t, tr.IsComplete())

	require.NoError(t, tr.Record(c, ideasFor(c, 1, "1", "2", "3"), now))
	assert.True(t, tr.IsComplete())

	for _, s := range tr.Statuses() {
		assert.True(t, s.Submitted)
		require.NotNil(t, s.SubmittedAt)
	}
}

func TestTracker_DuplicateSubmission(t *testing.T) {
	a := uuid.New()
	tr := NewTracker(1, NewRotation([]uuid.UUID{a}), nil)

	_, err := tr.Check(a, []string{"x", "y", "z"})
	require.NoError(t, err)
	require.NoError(t, tr.Record(a, ideasFor(a, 1, "x", "y", "z"), time.Now()))

	_, err = tr.Check(a, []string{"p", "q", "r"})
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.ErrorIs(t, tr.Record(a, ideasFor(a, 1, "p", "q", "r"), time.Now()), ErrDuplicateSubmission)
	assert.Len(t, tr.IdeasOf(a), 3)
}

func TestTracker_CheckLeavesStateUntouched(t *testing.T) {
	a, outsider := uuid.New(), uuid.New()
	tr := NewTracker(1, NewRotation([]uuid.UUID{a}), nil)

	_, err := tr.Check(a, []string{"x", "X", "y"})
	assert.ErrorIs(t, err, ErrInvalidIdeaSet)
	_, err = tr.Check(outsider, []string{"x", "y", "z"})
	assert.ErrorIs(t, err, ErrNotOnRoster)

	_, submitted := tr.Submitted(a)
	assert.False(t, submitted)
}

func TestTracker_RoundOneHasNoPreviousIdeas(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	tr := NewTracker(1, NewRotation([]uuid.UUID{a, b}), nil)

	assert.Empty(t, tr.PreviousRoundIdeasFor(a))
	assert.Empty(t, tr.PreviousRoundIdeasFor(b))
}

func TestTracker_PreviousRoundIdeasFollowRotation(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	rot := NewRotation([]uuid.UUID{a, b, c})

	r1 := NewTracker(1, rot, nil)
	require.NoError(t, r1.Record(a, ideasFor(a, 1, "a1", "a2", "a3"), time.Now()))
	require.NoError(t, r1.Record(b, ideasFor(b, 1, "b1", "b2", "b3"), time.Now()))
	require.NoError(t, r1.Record(c, ideasFor(c, 1, "c1", "c2", "c3"), time.Now()))

	r2 := NewTracker(2, rot, r1)

	texts := func(ideas []models.Idea) []string {
		out := make([]string, len(ideas))
		for i, idea := range ideas {
			out[i] = idea.Text
		}
		return out
	}

	assert.Equal(t, []string{"c1", "c2", "c3"}, texts(r2.PreviousRoundIdeasFor(a)))
	assert.Equal(t, []string{"a1", "a2", "a3"}, texts(r2.PreviousRoundIdeasFor(b)))
	assert.Equal(t, []string{"b1", "b2", "b3"}, texts(r2.PreviousRoundIdeasFor(c)))

	// a fresh tracker over the same roster and round gives the same answer
	again := NewTracker(2, NewRotation([]uuid.UUID{a, b, c}), r1)
	assert.Equal(t, r2.PreviousRoundIdeasFor(b), again.PreviousRoundIdeasFor(b))
}

func TestTracker_DonorWhoSkippedLeavesNothingToBuildOn(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rot := NewRotation([]uuid.UUID{a, b})

	r1 := NewTracker(1, rot, nil)
	require.NoError(t, r1.Record(b, ideasFor(b, 1, "b1", "b2", "b3"), time.Now()))

	r2 := NewTracker(2, rot, r1)
	assert.Empty(t, r2.PreviousRoundIdeasFor(b))
	assert.Len(t, r2.PreviousRoundIdeasFor(a), 3)
}

// sheetHolder returns who holds the sheet started by origin in round.
func sheetHolder(r Rotation, origin uuid.UUID, round int) (uuid.UUID, bool) {
	s, ok := r.index[origin]
	if !ok || round < 1 {
		return uuid.Nil, false
	}
	return r.order[(s+round-1)%len(r.order)], true
}

func TestRotation_SheetTravelsOneSeatPerRound(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	rot := NewRotation([]uuid.UUID{a, b, c})

	holder, ok := sheetHolder(rot, a, 1)
	require.True(t, ok)
	assert.Equal(t, a, holder)

	for round := 2; round <= 6; round++ {
		prevHolder, _ := sheetHolder(rot, a, round-1)
		holder, _ := sheetHolder(rot, a, round)
		donor, ok := rot.Donor(holder, round)
		require.True(t, ok)
		assert.Equal(t, prevHolder, donor, "round %d", round)
	}

	_, ok = rot.Donor(a, 1)
	assert.False(t, ok)
}
