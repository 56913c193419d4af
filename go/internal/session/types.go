package session

import (
	"context"
	"time"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// SessionStore is the keyed storage the App persists sessions in. Get reports
// a missing session with found == false and a nil error.
type SessionStore interface {
	Put(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, bool, error)
	List(ctx context.Context) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// StatisticsReader is implemented by stores that keep the statistics of the
// current round in a column of their own.
type StatisticsReader interface {
	LastStatistics(ctx context.Context, id string) (*models.VoteStatistics, error)
}

// CreateSessionRequest represents a request to open a new session
type CreateSessionRequest struct {
	DealerName   string `json:"dealerName"`
	DealerAvatar string `json:"dealerAvatar,omitempty"`
}

// StartRoundRequest represents a request to open voting on a story
type StartRoundRequest struct {
	StoryName        string `json:"storyName,omitempty"`
	StoryDescription string `json:"storyDescription,omitempty"`
}

// RevealResult is returned by a successful reveal.
type RevealResult struct {
	Round      *models.Round         `json:"round"`
	Statistics models.VoteStatistics `json:"stats"`
}

// CancelResult is returned when an active round is cancelled.
type CancelResult struct {
	Round   *models.Round   `json:"round"`
	Session *models.Session `json:"session"`
}
