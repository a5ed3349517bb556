package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the part a user plays in a team's session.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleMember  Role = "member"
	RoleManager Role = "manager"
)

// CanSubmit reports whether the role writes ideas.
func (r Role) CanSubmit() bool {
	return r == RoleLeader || r == RoleMember
}

// CanControl reports whether the role may start, pause, resume or end a session.
func (r Role) CanControl() bool {
	return r == RoleLeader || r == RoleManager
}

// Member is a user as seen from a team.
type Member struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

// Team represents a brainstorming team. Members excludes the leader and
// keeps the order the team was assembled in.
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Leader    Member    `json:"leader"`
	Manager   *Member   `json:"manager,omitempty"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Roster returns the eligible submitters: the leader first, then the members
// in order. The manager and duplicate entries are skipped.
func (t Team) Roster() []Member {
	seen := make(map[uuid.UUID]bool, len(t.Members)+1)
	if t.Manager != nil {
		seen[t.Manager.UserID] = true
	}

	roster := make([]Member, 0, len(t.Members)+1)
	for _, m := range append([]Member{t.Leader}, t.Members...) {
		if m.UserID == uuid.Nil || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		roster = append(roster, m)
	}
	return roster
}

// RoleOf resolves a user's role. The manager role wins over membership.
func (t Team) RoleOf(userID uuid.UUID) (Role, bool) {
	switch {
	case userID == uuid.Nil:
		return "", false
	case t.Manager != nil && t.Manager.UserID == userID:
		return RoleManager, true
	case t.Leader.UserID == userID:
		return RoleLeader, true
	}
	for _, m := range t.Members {
		if m.UserID == userID {
			return RoleMember, true
		}
	}
	return "", false
}

// DisplayName returns the name a user is known by on the team.
func (t Team) DisplayName(userID uuid.UUID) string {
	if t.Manager != nil && t.Manager.UserID == userID {
		return t.Manager.DisplayName
	}
	for _, m := range append([]Member{t.Leader}, t.Members...) {
		if m.UserID == userID {
			return m.DisplayName
		}
	}
	return ""
}

// Topic is the problem statement a session brainstorms on.
type Topic struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
}
