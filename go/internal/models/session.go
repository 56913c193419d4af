package models

import "time"

// SessionStatus defines the status of a session.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusVoting   SessionStatus = "voting"
	SessionStatusRevealed SessionStatus = "revealed"
)

// Session owns its players and every round played in it. CurrentRound, when
// set, points at the last element of Rounds.
type Session struct {
	ID           string        `json:"id"`
	DealerID     string        `json:"dealerId"`
	Players      []Player      `json:"players"`
	CurrentRound *Round        `json:"currentRound,omitempty"`
	Rounds       []*Round      `json:"rounds"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// FindPlayer returns the index of a player on the roster, or -1.
func (s *Session) FindPlayer(playerID string) int {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// Dealer returns the dealer if they are still on the roster.
func (s *Session) Dealer() (Player, bool) {
	if i := s.FindPlayer(s.DealerID); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}

// Clone returns a deep copy. CurrentRound in the copy points into the copied
// Rounds slice so the two never diverge.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = append([]Player{}, s.Players...)
	c.Rounds = make([]*Round, len(s.Rounds))
	c.CurrentRound = nil
	for i, r := range s.Rounds {
		c.Rounds[i] = r.Clone()
		if s.CurrentRound != nil && r.ID == s.CurrentRound.ID {
			c.CurrentRound = c.Rounds[i]
		}
	}
	if s.CurrentRound != nil && c.CurrentRound == nil {
		c.CurrentRound = s.CurrentRound.Clone()
	}
	return &c
}

// Masked returns a copy in which every round that was not revealed hides its
// estimates. Cancelled rounds never reveal.
func (s *Session) Masked() *Session {
	c := s.Clone()
	if c == nil {
		return nil
	}
	current := c.CurrentRound
	if current != nil && current.Status != RoundStatusRevealed {
		c.CurrentRound = current.Masked()
	}
	for i, r := range c.Rounds {
		switch {
		case r == current:
			c.Rounds[i] = c.CurrentRound
		case r.Status != RoundStatusRevealed:
			c.Rounds[i] = r.Masked()
		}
	}
	return c
}
