package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcdev12/brainstorm/go/internal/models"
)

// Seed is a snapshot of the team and topic directory, as kept in
// assets/teams.json.
type Seed struct {
	Teams  []models.Team  `json:"teams"`
	Topics []models.Topic `json:"topics"`
}

func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("unmarshal seed: %w", err)
	}
	return seed, nil
}

// Load puts every team and topic of seed into the directory.
func (m *Memory) Load(seed Seed) {
	for _, team := range seed.Teams {
		m.PutTeam(team)
	}
	for _, topic := range seed.Topics {
		m.PutTopic(topic)
	}
}
