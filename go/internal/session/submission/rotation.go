package submission

import "github.com/google/uuid"

// Rotation is the pass sequence of a session, fixed at start from the roster
// order. In round N the member at index i builds on what the member at
// index i-1 (cyclic) wrote in round N-1, so the sheet started by member s is
// held by member (s+N-1) mod n in round N.
type Rotation struct {
	order []uuid.UUID
	index map[uuid.UUID]int
}

// NewRotation builds a rotation over roster in the given order.
func NewRotation(roster []uuid.UUID) Rotation {
	order := make([]uuid.UUID, len(roster))
	copy(order, roster)

	index := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	return Rotation{order: order, index: index}
}

// Members returns the roster in pass order.
func (r Rotation) Members() []uuid.UUID {
	out := make([]uuid.UUID, len(r.order))
	copy(out, r.order)
	return out
}

// Contains reports whether the member is on the roster.
func (r Rotation) Contains(member uuid.UUID) bool {
	_, ok := r.index[member]
	return ok
}

// Donor returns whose previous-round ideas the member builds on in round.
// Round 1 has no donor.
func (r Rotation) Donor(member uuid.UUID, round int) (uuid.UUID, bool) {
	if round <= 1 {
		return uuid.Nil, false
	}
	i, ok := r.index[member]
	if !ok || len(r.order) == 0 {
		return uuid.Nil, false
	}
	n := len(r.order)
	return r.order[(i-1+n)%n], true
}
