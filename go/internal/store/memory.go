package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
)

// Memory is an in-process Store. It backs tests and single-node demos.
type Memory struct {
	mu       sync.RWMutex
	teams    map[uuid.UUID]models.Team
	topics   map[uuid.UUID]models.Topic
	sessions map[uuid.UUID]models.Session
	rounds   map[uuid.UUID]map[uuid.UUID]models.Round
	ideas    map[uuid.UUID][]models.Idea
	logs     map[uuid.UUID][]models.SessionLog
}

func NewMemory() *Memory {
	return &Memory{
		teams:    make(map[uuid.UUID]models.Team),
		topics:   make(map[uuid.UUID]models.Topic),
		sessions: make(map[uuid.UUID]models.Session),
		rounds:   make(map[uuid.UUID]map[uuid.UUID]models.Round),
		ideas:    make(map[uuid.UUID][]models.Idea),
		logs:     make(map[uuid.UUID][]models.SessionLog),
	}
}

// PutTeam adds or replaces a team in the directory.
func (m *Memory) PutTeam(team models.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[team.ID] = team
}

// PutTopic adds or replaces a topic in the directory.
func (m *Memory) PutTopic(topic models.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[topic.ID] = topic
}

func (m *Memory) GetTeam(_ context.Context, id uuid.UUID) (models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	team, ok := m.teams[id]
	if !ok {
		return models.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return team, nil
}

func (m *Memory) GetTopic(_ context.Context, id uuid.UUID) (models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topic, ok := m.topics[id]
	if !ok {
		return models.Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	return topic, nil
}

func (m *Memory) CreateSession(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.TeamID == session.TeamID && existing.Status.Active() {
			return ErrActiveSessionExists
		}
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) GetSession(_ context.Context, id uuid.UUID) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return session, nil
}

func (m *Memory) SaveProgress(_ context.Context, session models.Session, rounds ...models.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	m.sessions[session.ID] = session

	byID := m.rounds[session.ID]
	if byID == nil {
		byID = make(map[uuid.UUID]models.Round)
		m.rounds[session.ID] = byID
	}
	for _, r := range rounds {
		byID[r.ID] = r
	}
	return nil
}

func (m *Memory) ListRounds(_ context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Round, 0, len(m.rounds[sessionID]))
	for _, r := range m.rounds[sessionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (m *Memory) InsertIdeas(_ context.Context, ideas []models.Idea) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idea := range ideas {
		m.ideas[idea.SessionID] = append(m.ideas[idea.SessionID], idea)
	}
	return nil
}

func (m *Memory) ListIdeas(_ context.Context, sessionID uuid.UUID) ([]models.Idea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Idea, len(m.ideas[sessionID]))
	copy(out, m.ideas[sessionID])
	return out, nil
}

func (m *Memory) AppendLog(_ context.Context, entry models.SessionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[entry.SessionID] = append(m.logs[entry.SessionID], entry)
	return nil
}

func (m *Memory) ListLogs(_ context.Context, sessionID uuid.UUID) ([]models.SessionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SessionLog, len(m.logs[sessionID]))
	copy(out, m.logs[sessionID])
	return out, nil
}
