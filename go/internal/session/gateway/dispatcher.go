package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/session"
)

// SessionApp is what the gateway needs from the session state machine
type SessionApp interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	AddPlayer(ctx context.Context, sessionID string, player models.Player) (*models.Session, error)
	RemovePlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error)
	SetPlayerConnected(ctx context.Context, sessionID, playerID string, connected bool) (*models.Session, error)
	StartRound(ctx context.Context, sessionID string, req session.StartRoundRequest) (*models.Round, error)
	CancelRound(ctx context.Context, sessionID string) (*session.CancelResult, error)
	PlaceVote(ctx context.Context, sessionID, playerID string, value *models.Estimate) (*models.Session, error)
	RevealVotes(ctx context.Context, sessionID string) (*session.RevealResult, error)
}

// Command is one inbound room event after it has been tied to a session and actor.
type Command struct {
	SessionID string
	ActorID   string
	Payload   json.RawMessage
}

// Result is everything a handled command produces. Nothing here touches a
// socket; the Hub decides where events go.
type Result struct {
	Ack        *Event   // sent to the actor only
	Broadcasts []*Event // sent to the rest of the room
	Join       bool     // actor enters the session room
	Leave      bool     // actor leaves the session room
	ActorID    string   // player id of the actor after the command
	Value      interface{}
}

// HandlerFunc handles one inbound event type.
type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

// Policy holds authorization rules layered on top of the state machine.
type Policy struct {
	DealerOnly bool
}

// Dispatcher maps inbound event names to handlers.
type Dispatcher struct {
	app      SessionApp
	policy   Policy
	clock    clockwork.Clock
	handlers map[EventType]HandlerFunc
}

// NewDispatcher creates a dispatcher with the standard event table.
func NewDispatcher(app SessionApp, policy Policy, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &Dispatcher{
		app:    app,
		policy: policy,
		clock:  clock,
	}
	d.handlers = map[EventType]HandlerFunc{
		EventSessionJoin:  d.handleJoin,
		EventSessionLeave: d.handleLeave,
		EventVotePlace:    d.handleVote,
		EventRoundStart:   d.handleStartRound,
		EventRoundReveal:  d.handleReveal,
		EventRoundCancel:  d.handleCancelRound,
	}
	return d
}

// Dispatch runs the handler registered for eventType.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType EventType, cmd Command) (Result, error) {
	h, ok := d.handlers[eventType]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	return h(ctx, cmd)
}

// Disconnect marks the actor as gone without removing them from the roster.
func (d *Dispatcher) Disconnect(ctx context.Context, sessionID, playerID string) (Result, error) {
	_, err := d.app.SetPlayerConnected(ctx, sessionID, playerID, false)
	if errors.Is(err, session.ErrPlayerNotFound) || errors.Is(err, session.ErrSessionNotFound) {
		// already left or the session is gone
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	ev, err := d.event(sessionID, EventPlayerDisconnected, PlayerDisconnectedPayload{PlayerID: playerID})
	if err != nil {
		return Result{}, err
	}
	return Result{Broadcasts: []*Event{ev}, ActorID: playerID}, nil
}

func (d *Dispatcher) handleJoin(ctx context.Context, cmd Command) (Result, error) {
	var p JoinPayload
	if err := decode(cmd.Payload, &p); err != nil {
		return Result{}, err
	}
	player := p.Player
	if player.ID == "" {
		player.ID = cmd.ActorID
	}

	s, err := d.app.AddPlayer(ctx, cmd.SessionID, player)
	if err != nil {
		return Result{}, err
	}

	joined := s.Players[len(s.Players)-1]
	if player.ID != "" {
		joined = s.Players[s.FindPlayer(player.ID)]
	}

	ack, err := d.event(s.ID, EventSessionJoined, SessionJoinedPayload{Session: s.Masked(), PlayerID: joined.ID})
	if err != nil {
		return Result{}, err
	}
	bc, err := d.event(s.ID, EventPlayerJoined, PlayerJoinedPayload{Player: joined, PlayerCount: len(s.Players)})
	if err != nil {
		return Result{}, err
	}
	return Result{Ack: ack, Broadcasts: []*Event{bc}, Join: true, ActorID: joined.ID, Value: s}, nil
}

func (d *Dispatcher) handleLeave(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ActorID == "" {
		return Result{}, ErrNotJoined
	}
	current, err := d.app.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return Result{}, err
	}
	if current.FindPlayer(cmd.ActorID) < 0 {
		return Result{}, fmt.Errorf("%w: %s", session.ErrPlayerNotFound, cmd.ActorID)
	}

	s, err := d.app.RemovePlayer(ctx, cmd.SessionID, cmd.ActorID)
	if err != nil {
		return Result{}, err
	}

	ack, err := d.event(s.ID, EventSessionLeft, struct{}{})
	if err != nil {
		return Result{}, err
	}
	bc, err := d.event(s.ID, EventPlayerLeft, PlayerLeftPayload{PlayerID: cmd.ActorID, PlayerCount: len(s.Players)})
	if err != nil {
		return Result{}, err
	}
	return Result{Ack: ack, Broadcasts: []*Event{bc}, Leave: true, ActorID: cmd.ActorID, Value: s}, nil
}

func (d *Dispatcher) handleVote(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ActorID == "" {
		return Result{}, ErrNotJoined
	}
	var p VotePayload
	if err := decode(cmd.Payload, &p); err != nil {
		return Result{}, err
	}

	s, err := d.app.PlaceVote(ctx, cmd.SessionID, cmd.ActorID, p.Value)
	if err != nil {
		return Result{}, err
	}

	ack, err := d.event(s.ID, EventVoteAccepted, VoteAcceptedPayload{Value: p.Value})
	if err != nil {
		return Result{}, err
	}
	bc, err := d.event(s.ID, EventVotePlaced, VotePlacedPayload{
		PlayerID:   cmd.ActorID,
		HasVoted:   p.Value != nil,
		VotedCount: s.CurrentRound.VotedCount(),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Ack: ack, Broadcasts: []*Event{bc}, ActorID: cmd.ActorID, Value: s}, nil
}

func (d *Dispatcher) handleStartRound(ctx context.Context, cmd Command) (Result, error) {
	var req session.StartRoundRequest
	if err := decode(cmd.Payload, &req); err != nil {
		return Result{}, err
	}
	if err := d.authorize(ctx, cmd); err != nil {
		return Result{}, err
	}

	round, err := d.app.StartRound(ctx, cmd.SessionID, req)
	if err != nil {
		return Result{}, err
	}
	return d.same(cmd, EventRoundStarted, RoundStartedPayload{Round: round.Masked()}, round)
}

func (d *Dispatcher) handleReveal(ctx context.Context, cmd Command) (Result, error) {
	if err := d.authorize(ctx, cmd); err != nil {
		return Result{}, err
	}

	res, err := d.app.RevealVotes(ctx, cmd.SessionID)
	if err != nil {
		return Result{}, err
	}
	return d.same(cmd, EventRoundRevealed, RoundRevealedPayload{Votes: res.Round.Votes, Stats: res.Statistics}, res)
}

func (d *Dispatcher) handleCancelRound(ctx context.Context, cmd Command) (Result, error) {
	if err := d.authorize(ctx, cmd); err != nil {
		return Result{}, err
	}

	res, err := d.app.CancelRound(ctx, cmd.SessionID)
	if err != nil {
		return Result{}, err
	}
	return d.same(cmd, EventRoundCancelled, RoundCancelledPayload{RoundID: res.Round.ID}, res)
}

// same builds a result whose ack and broadcast carry the same payload.
func (d *Dispatcher) same(cmd Command, eventType EventType, payload, value interface{}) (Result, error) {
	ack, err := d.event(cmd.SessionID, eventType, payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Ack: ack, Broadcasts: []*Event{ack}, ActorID: cmd.ActorID, Value: value}, nil
}

func (d *Dispatcher) authorize(ctx context.Context, cmd Command) error {
	if !d.policy.DealerOnly {
		return nil
	}
	s, err := d.app.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return err
	}
	// a dealer who left cannot act until they rejoin
	dealer, ok := s.Dealer()
	if !ok || cmd.ActorID == "" || cmd.ActorID != dealer.ID {
		return ErrForbidden
	}
	return nil
}

func (d *Dispatcher) event(sessionID string, eventType EventType, payload interface{}) (*Event, error) {
	return NewEvent(sessionID, eventType, payload, d.clock.Now())
}

func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
