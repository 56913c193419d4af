package models

import (
	"time"

	"github.com/segmentio/encoding/json"
)

// RoundStatus defines the status of a voting round.
type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusRevealed  RoundStatus = "revealed"
	RoundStatusCancelled RoundStatus = "cancelled"
)

// Vote is one player's slot in a round. Value stays nil until the player estimates.
type Vote struct {
	PlayerID     string     `json:"playerId"`
	PlayerName   string     `json:"playerName"`
	PlayerAvatar string     `json:"playerAvatar"`
	Value        *Estimate  `json:"value,omitempty"`
	Voted        bool       `json:"hasVoted"`
	PlacedAt     *time.Time `json:"placedAt,omitempty"`
}

// HasVoted reports whether the player has cast an estimate. It stays true on
// masked copies where Value is stripped.
func (v Vote) HasVoted() bool {
	return v.Voted || v.Value != nil
}

// Set records an estimate. A nil value retracts the vote.
func (v *Vote) Set(value *Estimate, at time.Time) {
	if value == nil {
		v.Value = nil
		v.Voted = false
		v.PlacedAt = nil
		return
	}
	e := *value
	v.Value = &e
	v.Voted = true
	v.PlacedAt = &at
}

// Range is the spread of the cast estimates.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Mode holds the most frequent estimate(s). It encodes as a JSON number when
// there is a single mode and as an array otherwise.
type Mode []int

func (m Mode) MarshalJSON() ([]byte, error) {
	if len(m) == 1 {
		return json.Marshal(m[0])
	}
	return json.Marshal([]int(m))
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = nil
		return nil
	}
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*m = Mode{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = Mode(many)
	return nil
}

// VoteStatistics summarises the revealed votes of a round.
type VoteStatistics struct {
	Average   float64  `json:"average"`
	Median    float64  `json:"median"`
	Mode      Mode     `json:"mode"`
	Range     Range    `json:"range"`
	Consensus bool     `json:"consensus"`
	Outliers  []string `json:"outliers"`
}

// Round is one voting cycle for a single story.
type Round struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"sessionId"`
	StoryName        string          `json:"storyName,omitempty"`
	StoryDescription string          `json:"storyDescription,omitempty"`
	Votes            []Vote          `json:"votes"`
	Status           RoundStatus     `json:"status"`
	StartedAt        time.Time       `json:"startedAt"`
	RevealedAt       *time.Time      `json:"revealedAt,omitempty"`
	CancelledAt      *time.Time      `json:"cancelledAt,omitempty"`
	Statistics       *VoteStatistics `json:"statistics,omitempty"`
}

// IsActive reports whether the round still accepts votes.
func (r *Round) IsActive() bool {
	return r.Status == RoundStatusActive
}

// FindVote returns the vote slot of a player, or nil.
func (r *Round) FindVote(playerID string) *Vote {
	for i := range r.Votes {
		if r.Votes[i].PlayerID == playerID {
			return &r.Votes[i]
		}
	}
	return nil
}

// VotedCount returns how many slots carry an estimate.
func (r *Round) VotedCount() int {
	n := 0
	for _, v := range r.Votes {
		if v.HasVoted() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the round.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.Votes = make([]Vote, len(r.Votes))
	for i, v := range r.Votes {
		c.Votes[i] = v
		if v.Value != nil {
			val := *v.Value
			c.Votes[i].Value = &val
		}
		if v.PlacedAt != nil {
			at := *v.PlacedAt
			c.Votes[i].PlacedAt = &at
		}
	}
	c.RevealedAt = cloneTime(r.RevealedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.Statistics != nil {
		s := *r.Statistics
		s.Mode = append(Mode(nil), r.Statistics.Mode...)
		s.Outliers = append([]string{}, r.Statistics.Outliers...)
		c.Statistics = &s
	}
	return &c
}

// Masked returns a copy with every estimate hidden. Active rounds are
// broadcast this way so nobody sees a value before the reveal.
func (r *Round) Masked() *Round {
	c := r.Clone()
	if c == nil || c.Status == RoundStatusRevealed {
		return c
	}
	for i := range c.Votes {
		c.Votes[i].Voted = c.Votes[i].HasVoted()
		c.Votes[i].Value = nil
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
