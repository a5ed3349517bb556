package coordinator

import (
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/round"
	"github.com/rs/zerolog/log"
)

// restore rebuilds rounds and submissions from storage. It runs before the
// coordinator goroutine starts.
func (c *Coordinator) restore(rounds []models.Round, ideas []models.Idea) error {
	byRound := make(map[int]map[uuid.UUID][]models.Idea)
	for _, idea := range ideas {
		authors := byRound[idea.RoundNumber]
		if authors == nil {
			authors = make(map[uuid.UUID][]models.Idea)
			byRound[idea.RoundNumber] = authors
		}
		authors[idea.AuthorID] = append(authors[idea.AuthorID], idea)
	}

	sort.Slice(rounds, func(i, j int) bool { return rounds[i].RoundNumber < rounds[j].RoundNumber })
	for _, r := range rounds {
		cfg := c.roundConfig(r.ID, r.RoundNumber)
		for author, list := range byRound[r.RoundNumber] {
			sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
			if err := cfg.Tracker.Record(author, list, list[0].CreatedAt); err != nil {
				log.Warn().Err(err).
					Str("session_id", c.id.String()).
					Str("user_id", author.String()).
					Int("round", r.RoundNumber).
					Msg("skipping stored submission")
			}
		}

		if r.Closed() || r.RoundNumber != c.session.CurrentRound || !c.session.Status.Active() {
			c.adopt(round.NewClosed(cfg, r))
			continue
		}

		e := round.NewEngine(cfg)
		expired, err := e.Restore(r)
		if err != nil {
			return err
		}
		c.adopt(e)
		c.expiredOnLoad = expired
	}
	return nil
}

// catchUp finishes work a crashed coordinator left behind. It runs on the
// coordinator goroutine.
func (c *Coordinator) catchUp() {
	status := c.session.Status
	if status != models.SessionStatusRunning && status != models.SessionStatusPaused {
		return
	}

	if c.current == nil || c.current.Number() != c.session.CurrentRound {
		e, err := c.openRound(c.session.CurrentRound)
		if err != nil {
			log.Error().Err(err).Str("session_id", c.id.String()).Msg("failed to reopen round")
			return
		}
		if status == models.SessionStatusPaused {
			_ = e.Pause()
		}
		c.adopt(e)
		if err := c.persist(e.Model()); err != nil {
			log.Error().Err(err).Str("session_id", c.id.String()).Msg("failed to persist reopened round")
		}
		return
	}

	switch {
	case c.current.State() == round.StateClosed:
		c.advance()
	case c.expiredOnLoad:
		if c.current.Expire() {
			c.advance()
		}
	case c.current.Tracker().IsComplete():
		if c.current.Close(models.CloseReasonAllSubmitted) == nil {
			c.advance()
		}
	}
	c.expiredOnLoad = false
}
