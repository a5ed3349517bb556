package submission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
)

// Status is the derived submission state of one roster member in a round.
type Status struct {
	MemberID    uuid.UUID  `json:"user_id"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type entry struct {
	ideas       []models.Idea
	submittedAt time.Time
}

// Tracker records who has submitted in one round. It is not safe for
// concurrent use; the owning coordinator serializes access.
type Tracker struct {
	round    int
	rotation Rotation
	entries  map[uuid.UUID]entry
	prev     *Tracker
}

// NewTracker creates the tracker for round. prev is the previous round's
// tracker and is nil for round 1.
func NewTracker(round int, rotation Rotation, prev *Tracker) *Tracker {
	return &Tracker{
		round:    round,
		rotation: rotation,
		entries:  make(map[uuid.UUID]entry, len(rotation.order)),
		prev:     prev,
	}
}

func (t *Tracker) Round() int {
	return t.round
}

func (t *Tracker) Rotation() Rotation {
	return t.rotation
}

// Check validates a submission without recording it and returns the trimmed texts.
func (t *Tracker) Check(member uuid.UUID, ideas []string) ([]string, error) {
	if !t.rotation.Contains(member) {
		return nil, ErrNotOnRoster
	}
	if _, done := t.entries[member]; done {
		return nil, ErrDuplicateSubmission
	}
	return ValidateIdeas(ideas)
}

// Record stores a member's ideas. The ideas must already have passed Check.
func (t *Tracker) Record(member uuid.UUID, ideas []models.Idea, at time.Time) error {
	if !t.rotation.Contains(member) {
		return ErrNotOnRoster
	}
	if _, done := t.entries[member]; done {
		return ErrDuplicateSubmission
	}
	if len(ideas) != IdeasPerSubmission {
		return fmt.Errorf("%w: expected %d ideas, got %d", ErrInvalidIdeaSet, IdeasPerSubmission, len(ideas))
	}

	stored := make([]models.Idea, len(ideas))
	copy(stored, ideas)
	t.entries[member] = entry{ideas: stored, submittedAt: at}
	return nil
}

// Submitted reports whether the member has submitted and when.
func (t *Tracker) Submitted(member uuid.UUID) (time.Time, bool) {
	e, ok := t.entries[member]
	return e.submittedAt, ok
}

// IdeasOf returns the ideas the member wrote this round.
func (t *Tracker) IdeasOf(member uuid.UUID) []models.Idea {
	e, ok := t.entries[member]
	if !ok {
		return nil
	}
	out := make([]models.Idea, len(e.ideas))
	copy(out, e.ideas)
	return out
}

// IsComplete reports whether every roster member has submitted.
func (t *Tracker) IsComplete() bool {
	for _, id := range t.rotation.order {
		if _, ok := t.entries[id]; !ok {
			return false
		}
	}
	return true
}

// Donor returns the member whose previous-round ideas this member builds on.
func (t *Tracker) Donor(member uuid.UUID) (uuid.UUID, bool) {
	return t.rotation.Donor(member, t.round)
}

// PreviousRoundIdeasFor returns the donor's ideas from the previous round.
// Round 1 always returns nothing, as does a donor who never submitted.
func (t *Tracker) PreviousRoundIdeasFor(member uuid.UUID) []models.Idea {
	if t.round <= 1 || t.prev == nil {
		return nil
	}
	donor, ok := t.Donor(member)
	if !ok {
		return nil
	}
	return t.prev.IdeasOf(donor)
}

// Statuses returns the submission state of every roster member in pass order.
func (t *Tracker) Statuses() []Status {
	out := make([]Status, 0, len(t.rotation.order))
	for _, id := range t.rotation.order {
		s := Status{MemberID: id}
		if e, ok := t.entries[id]; ok {
			at := e.submittedAt
			s.Submitted = true
			s.SubmittedAt = &at
		}
		out = append(out, s)
	}
	return out
}

// Ideas returns every idea recorded this round in pass order.
func (t *Tracker) Ideas() []models.Idea {
	var out []models.Idea
	for _, id := range t.rotation.order {
		if e, ok := t.entries[id]; ok {
			out = append(out, e.ideas...)
		}
	}
	return out
}
