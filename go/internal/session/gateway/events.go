package gateway

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// Event is the envelope for everything the server sends to a room
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	SessionID string          `json:"sessionId"` // Session the event belongs to
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType names a room event
type EventType string

// Client → server
const (
	EventSessionJoin  EventType = "session:join"
	EventSessionLeave EventType = "session:leave"
	EventVotePlace    EventType = "vote:place"
	EventRoundStart   EventType = "round:start"
	EventRoundReveal  EventType = "round:reveal"
	EventRoundCancel  EventType = "round:cancel"
)

// Server → client
const (
	EventSessionJoined      EventType = "session:joined"
	EventSessionLeft        EventType = "session:left"
	EventPlayerJoined       EventType = "player:joined"
	EventPlayerLeft         EventType = "player:left"
	EventPlayerDisconnected EventType = "player:disconnected"
	EventVoteAccepted       EventType = "vote:accepted"
	EventVotePlaced         EventType = "vote:placed"
	EventRoundStarted       EventType = "round:started"
	EventRoundRevealed      EventType = "round:revealed"
	EventRoundCancelled     EventType = "round:cancelled"
	EventError              EventType = "error"
)

// ClientMessage is what a client writes on the socket
type ClientMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads

type JoinPayload struct {
	Player models.Player `json:"player"`
}

type VotePayload struct {
	Value *models.Estimate `json:"value"`
}

// Outbound payloads

type SessionJoinedPayload struct {
	Session  *models.Session `json:"session"`
	PlayerID string          `json:"playerId"`
}

type PlayerJoinedPayload struct {
	Player      models.Player `json:"player"`
	PlayerCount int           `json:"playerCount"`
}

type PlayerLeftPayload struct {
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerDisconnectedPayload struct {
	PlayerID string `json:"playerId"`
}

type VoteAcceptedPayload struct {
	Value *models.Estimate `json:"value"`
}

// VotePlacedPayload tells the room who voted, never what.
type VotePlacedPayload struct {
	PlayerID   string `json:"playerId"`
	HasVoted   bool   `json:"hasVoted"`
	VotedCount int    `json:"votedCount"`
}

type RoundStartedPayload struct {
	Round *models.Round `json:"round"`
}

type RoundRevealedPayload struct {
	Votes []models.Vote          `json:"votes"`
	Stats models.VoteStatistics `json:"stats"`
}

type RoundCancelledPayload struct {
	RoundID string `json:"roundId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent wraps payload in an event envelope.
func NewEvent(sessionID string, eventType EventType, payload interface{}, at time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ParsePayload decodes the event data into out.
func (e *Event) ParsePayload(out interface{}) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("parse %s payload: %w", e.Type, err)
	}
	return nil
}
