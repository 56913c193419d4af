package repository

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// snapshot is the persisted form of a session. Rounds owns every round and
// the current one is referenced by id, so a decoded session can never hold
// two diverging copies of the same round.
type snapshot struct {
	ID             string               `json:"id"`
	DealerID       string               `json:"dealerId"`
	Players        []models.Player      `json:"players"`
	CurrentRoundID string               `json:"currentRoundId,omitempty"`
	Rounds         []*models.Round      `json:"rounds"`
	Status         models.SessionStatus `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func encodeSession(s *models.Session) ([]byte, error) {
	snap := snapshot{
		ID:        s.ID,
		DealerID:  s.DealerID,
		Players:   s.Players,
		Rounds:    s.Rounds,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.CurrentRound != nil {
		snap.CurrentRoundID = s.CurrentRound.ID
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return snap.toModel()
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return snap, nil
}

func (snap snapshot) toModel() (*models.Session, error) {
	s := &models.Session{
		ID:        snap.ID,
		DealerID:  snap.DealerID,
		Players:   snap.Players,
		Rounds:    snap.Rounds,
		Status:    snap.Status,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
	if s.Players == nil {
		s.Players = []models.Player{}
	}
	if s.Rounds == nil {
		s.Rounds = []*models.Round{}
	}

	if snap.CurrentRoundID != "" {
		for _, r := range s.Rounds {
			if r.ID == snap.CurrentRoundID {
				s.CurrentRound = r
				break
			}
		}
		if s.CurrentRound == nil {
			return nil, fmt.Errorf("session %s: current round %s missing from history", snap.ID, snap.CurrentRoundID)
		}
	}
	return s, nil
}
