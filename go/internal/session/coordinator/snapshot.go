package coordinator

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
)

// SessionView is a session with the names a client needs to render it.
type SessionView struct {
	models.Session
	TeamName         string `json:"team_name"`
	TopicTitle       string `json:"topic_title"`
	TopicDescription string `json:"topic_description,omitempty"`
}

// MemberStatus is one roster member's submission state in the current round.
type MemberStatus struct {
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Snapshot is the full session state as seen by one viewer. It is the
// payload of SESSION_STATE and the only thing a client needs to resync.
type Snapshot struct {
	Session               SessionView       `json:"session"`
	CurrentRound          *models.Round     `json:"current_round,omitempty"`
	TimerRemainingSeconds int               `json:"timer_remaining_seconds"`
	TimerState            models.TimerState `json:"timer_state,omitempty"`
	PreviousIdeas         []models.Idea     `json:"previous_ideas"`
	MyIdeas               []models.Idea     `json:"my_ideas"`
	TeamSubmissions       []MemberStatus    `json:"team_submissions"`
	CanSubmit             bool              `json:"can_submit"`
	IsRoundLocked         bool              `json:"is_round_locked"`
	UserRole              models.Role       `json:"user_role"`
}

// RoundIdeas groups a session's ideas by round.
type RoundIdeas struct {
	RoundNumber int           `json:"round_number"`
	Ideas       []models.Idea `json:"ideas"`
}

// snapshot must run on the actor.
func (c *Coordinator) snapshot(viewer uuid.UUID, role models.Role) Snapshot {
	s := Snapshot{
		Session: SessionView{
			Session:          c.session,
			TeamName:         c.team.Name,
			TopicTitle:       c.topic.Title,
			TopicDescription: c.topic.Description,
		},
		TimerRemainingSeconds: c.session.RoundDurationSec,
		PreviousIdeas:         []models.Idea{},
		MyIdeas:               []models.Idea{},
		TeamSubmissions:       []MemberStatus{},
		UserRole:              role,
	}

	if c.current == nil {
		s.IsRoundLocked = true
		for _, id := range c.rotation.Members() {
			s.TeamSubmissions = append(s.TeamSubmissions, MemberStatus{UserID: id, UserName: c.team.DisplayName(id)})
		}
		return s
	}

	model := c.current.Model()
	s.CurrentRound = &model
	s.TimerRemainingSeconds = c.current.Remaining()
	s.TimerState = c.current.TimerState()

	tracker := c.current.Tracker()
	if prev := tracker.PreviousRoundIdeasFor(viewer); len(prev) > 0 {
		s.PreviousIdeas = c.named(prev)
	}
	if mine := tracker.IdeasOf(viewer); len(mine) > 0 {
		s.MyIdeas = c.named(mine)
	}
	for _, st := range tracker.Statuses() {
		s.TeamSubmissions = append(s.TeamSubmissions, MemberStatus{
			UserID:      st.MemberID,
			UserName:    c.team.DisplayName(st.MemberID),
			Submitted:   st.Submitted,
			SubmittedAt: st.SubmittedAt,
		})
	}

	_, submitted := tracker.Submitted(viewer)
	s.IsRoundLocked = model.Closed() || c.session.Status == models.SessionStatusCompleted
	s.CanSubmit = role.CanSubmit() &&
		c.rotation.Contains(viewer) &&
		!submitted &&
		!s.IsRoundLocked &&
		c.session.Status == models.SessionStatusRunning
	return s
}

// named fills in author display names, which are not stored with ideas.
func (c *Coordinator) named(ideas []models.Idea) []models.Idea {
	out := make([]models.Idea, len(ideas))
	for i, idea := range ideas {
		idea.AuthorName = c.team.DisplayName(idea.AuthorID)
		out[i] = idea
	}
	return out
}
