package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// App owns the session state machine. Every mutation of a session runs under
// that session's lock, so the fetch, mutate and persist steps never interleave
// with another mutation of the same session.
type App struct {
	store SessionStore
	locks *KeyedMutex
	clock clockwork.Clock
}

// NewApp creates a new session App. A nil clock means the real clock.
func NewApp(store SessionStore, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		store: store,
		locks: NewKeyedMutex(),
		clock: clock,
	}
}

// CreateSession opens a session with the dealer as its only player.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	name, err := validatePlayerName(req.DealerName)
	if err != nil {
		return nil, err
	}
	avatar := req.DealerAvatar
	if avatar == "" {
		avatar = models.DefaultDealerAvatar
	}

	now := a.clock.Now()
	dealer := models.Player{
		ID:          uuid.NewString(),
		Name:        name,
		Avatar:      avatar,
		IsDealer:    true,
		IsConnected: true,
		JoinedAt:    now,
	}
	s := &models.Session{
		ID:        uuid.NewString(),
		DealerID:  dealer.ID,
		Players:   []models.Player{dealer},
		Rounds:    []*models.Round{},
		Status:    models.SessionStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w: %w", ErrStore, err)
	}

	log.Info().
		Str("session_id", s.ID).
		Str("dealer_id", dealer.ID).
		Msg("session created")
	return s, nil
}

// GetSession retrieves a session by ID
func (a *App) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return a.load(ctx, id)
}

// ListSessions returns every session, newest first.
func (a *App) ListSessions(ctx context.Context) ([]*models.Session, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w: %w", ErrStore, err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// LastStatistics returns the statistics of the current round, or nil when it
// has not been revealed.
func (a *App) LastStatistics(ctx context.Context, id string) (*models.VoteStatistics, error) {
	s, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if reader, ok := a.store.(StatisticsReader); ok {
		stats, err := reader.LastStatistics(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("last statistics %s: %w: %w", id, ErrStore, err)
		}
		return stats, nil
	}

	if s.CurrentRound == nil || s.CurrentRound.Status != models.RoundStatusRevealed || s.CurrentRound.Statistics == nil {
		return nil, nil
	}
	stats := *s.CurrentRound.Statistics
	return &stats, nil
}

// AddPlayer joins a player to the session. A player already on the roster is
// treated as reconnecting: joinedAt is refreshed and the player is marked
// connected. Players are never added to a round that is already running.
func (a *App) AddPlayer(ctx context.Context, sessionID string, player models.Player) (*models.Session, error) {
	return a.update(ctx, sessionID, func(s *models.Session, now time.Time) error {
		if i := s.FindPlayer(player.ID); player.ID != "" && i >= 0 {
			s.Players[i].JoinedAt = now
			s.Players[i].IsConnected = true
			return nil
		}

		name, err := validatePlayerName(player.Name)
		if err != nil {
			return err
		}
		if player.ID == "" {
			player.ID = uuid.NewString()
		}
		player.Name = name
		if player.Avatar == "" {
			player.Avatar = models.DefaultPlayerAvatar
		}
		player.IsDealer = player.ID == s.DealerID
		player.IsConnected = true
		player.JoinedAt = now
		s.Players = append(s.Players, player)
		return nil
	})
}

// RemovePlayer drops a player from the roster. Their vote in the current
// round, if any, is kept so the reveal still counts it. The dealer may be
// removed too; dealerId then points at a non-member.
func (a *App) RemovePlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	return a.update(ctx, sessionID, func(s *models.Session, _ time.Time) error {
		players := s.Players[:0]
		for _, p := range s.Players {
			if p.ID != playerID {
				players = append(players, p)
			}
		}
		s.Players = players
		return nil
	})
}

// SetPlayerConnected records connection presence without touching the roster.
func (a *App) SetPlayerConnected(ctx context.Context, sessionID, playerID string, connected bool) (*models.Session, error) {
	return a.update(ctx, sessionID, func(s *models.Session, _ time.Time) error {
		i := s.FindPlayer(playerID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		s.Players[i].IsConnected = connected
		return nil
	})
}

// StartRound opens voting on a story with one empty vote per player on the
// roster. A round that is still active is marked cancelled and kept in history.
func (a *App) StartRound(ctx context.Context, sessionID string, req StartRoundRequest) (*models.Round, error) {
	s, err := a.update(ctx, sessionID, func(s *models.Session, now time.Time) error {
		if s.CurrentRound != nil && s.CurrentRound.IsActive() {
			s.CurrentRound.Status = models.RoundStatusCancelled
			s.CurrentRound.CancelledAt = &now
			log.Info().
				Str("session_id", s.ID).
				Str("round_id", s.CurrentRound.ID).
				Msg("active round superseded")
		}

		votes := make([]models.Vote, 0, len(s.Players))
		for _, p := range s.Players {
			votes = append(votes, models.Vote{
				PlayerID:     p.ID,
				PlayerName:   p.Name,
				PlayerAvatar: p.Avatar,
			})
		}

		round := &models.Round{
			ID:               uuid.NewString(),
			SessionID:        s.ID,
			StoryName:        strings.TrimSpace(req.StoryName),
			StoryDescription: strings.TrimSpace(req.StoryDescription),
			Votes:            votes,
			Status:           models.RoundStatusActive,
			StartedAt:        now,
		}
		s.CurrentRound = round
		s.Rounds = append(s.Rounds, round)
		s.Status = models.SessionStatusVoting
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CurrentRound, nil
}

// CancelRound abandons the active round and returns the session to waiting.
func (a *App) CancelRound(ctx context.Context, sessionID string) (*CancelResult, error) {
	var cancelled *models.Round
	s, err := a.update(ctx, sessionID, func(s *models.Session, now time.Time) error {
		if s.CurrentRound == nil || !s.CurrentRound.IsActive() {
			return ErrNoActiveRound
		}
		s.CurrentRound.Status = models.RoundStatusCancelled
		s.CurrentRound.CancelledAt = &now
		cancelled = s.CurrentRound
		s.CurrentRound = nil
		s.Status = models.SessionStatusWaiting
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{Round: cancelled, Session: s}, nil
}

// PlaceVote sets a player's estimate in the active round. A nil value
// retracts a previously cast vote.
func (a *App) PlaceVote(ctx context.Context, sessionID, playerID string, value *models.Estimate) (*models.Session, error) {
	if value != nil && !value.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEstimate, *value)
	}

	return a.update(ctx, sessionID, func(s *models.Session, now time.Time) error {
		if s.CurrentRound == nil || !s.CurrentRound.IsActive() {
			return ErrNoActiveRound
		}
		vote := s.CurrentRound.FindVote(playerID)
		if vote == nil {
			return fmt.Errorf("%w: %s", ErrPlayerNotInRound, playerID)
		}

		vote.Set(value, now)
		return nil
	})
}

// RevealVotes closes the active round and attaches its statistics. Who may
// trigger a reveal is decided by the caller, not here.
func (a *App) RevealVotes(ctx context.Context, sessionID string) (*RevealResult, error) {
	var stats models.VoteStatistics
	s, err := a.update(ctx, sessionID, func(s *models.Session, now time.Time) error {
		if s.CurrentRound == nil || !s.CurrentRound.IsActive() {
			return ErrNoActiveRound
		}

		computed, err := CalculateStatistics(s.CurrentRound.Votes)
		if err != nil {
			return err
		}
		stats = computed

		s.CurrentRound.Status = models.RoundStatusRevealed
		s.CurrentRound.RevealedAt = &now
		s.CurrentRound.Statistics = &computed
		s.Status = models.SessionStatusRevealed
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("round_id", s.CurrentRound.ID).
		Float64("average", stats.Average).
		Bool("consensus", stats.Consensus).
		Msg("votes revealed")
	return &RevealResult{Round: s.CurrentRound, Statistics: stats}, nil
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (a *App) DeleteSession(ctx context.Context, id string) error {
	unlock := a.locks.Lock(id)
	defer unlock()

	if err := a.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w: %w", id, ErrStore, err)
	}

	log.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// CleanupStale removes sessions created more than maxAge ago and returns how
// many were removed.
func (a *App) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be greater than 0")
	}

	cutoff := a.clock.Now().Add(-maxAge)
	count, err := a.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale sessions: %w: %w", ErrStore, err)
	}

	log.Info().
		Time("cutoff", cutoff).
		Int("removed", count).
		Msg("stale sessions cleaned up")
	return count, nil
}

// update runs fn on a fresh copy of the session under the session lock and
// persists the result. Nothing is written when fn fails.
func (a *App) update(ctx context.Context, id string, fn func(s *models.Session, now time.Time) error) (*models.Session, error) {
	unlock := a.locks.Lock(id)
	defer unlock()

	s, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	if err := fn(s, now); err != nil {
		return nil, err
	}
	s.UpdatedAt = now

	if err := a.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("save session %s: %w: %w", id, ErrStore, err)
	}
	return s, nil
}

func (a *App) load(ctx context.Context, id string) (*models.Session, error) {
	s, found, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w: %w", id, ErrStore, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func validatePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidPlayer)
	}
	if utf8.RuneCountInString(name) > models.MaxPlayerNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrInvalidPlayer, models.MaxPlayerNameLength)
	}
	return name, nil
}
