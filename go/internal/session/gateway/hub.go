package gateway

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planning-poker/go/internal/session"
)

// Hub runs commands that fan out to a session room. A per-session sequencer
// lock is held from the state change until every resulting event is queued
// on the connections, so a room sees events in the order the mutations were
// accepted.
type Hub struct {
	dispatcher *Dispatcher
	conns      *ConnectionManager
	feed       *Feed
	seq        *session.KeyedMutex
	clock      clockwork.Clock
}

// NewHub wires a dispatcher to the connection rooms. feed may be nil.
func NewHub(dispatcher *Dispatcher, conns *ConnectionManager, feed *Feed, clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		dispatcher: dispatcher,
		conns:      conns,
		feed:       feed,
		seq:        session.NewKeyedMutex(),
		clock:      clock,
	}
}

// HandleMessage runs one client event for the connection's session.
func (h *Hub) HandleMessage(ctx context.Context, conn *Connection, msg ClientMessage) {
	if msg.Type == "" {
		h.sendError(conn, msg.Type, ErrBadPayload)
		return
	}

	unlock := h.seq.Lock(conn.SessionID)
	defer unlock()

	cmd := Command{
		SessionID: conn.SessionID,
		ActorID:   conn.PlayerID(),
		Payload:   msg.Data,
	}
	res, err := h.dispatcher.Dispatch(ctx, msg.Type, cmd)
	if err != nil {
		h.logFailure(msg.Type, cmd, err)
		h.sendError(conn, msg.Type, err)
		return
	}

	if res.Join {
		h.conns.JoinRoom(conn, res.ActorID)
	}
	if res.Ack != nil {
		h.conns.SendTo(conn, res.Ack)
	}
	for _, ev := range res.Broadcasts {
		h.conns.BroadcastToSession(conn.SessionID, ev, conn)
	}
	if res.Leave {
		h.conns.LeaveRoom(conn)
	}
	h.publish(res)
}

// HandleDisconnect marks the player of a dropped connection as disconnected
// once their last connection to the room is gone.
func (h *Hub) HandleDisconnect(ctx context.Context, conn *Connection) {
	playerID := conn.PlayerID()
	if !conn.Joined() || playerID == "" {
		return
	}

	unlock := h.seq.Lock(conn.SessionID)
	defer unlock()

	// another tab or a faster reconnect keeps the player present
	if h.conns.PlayerInRoom(conn.SessionID, playerID, conn) {
		return
	}

	res, err := h.dispatcher.Disconnect(ctx, conn.SessionID, playerID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", conn.SessionID).
			Str("player_id", playerID).
			Msg("failed to record disconnect")
		return
	}
	for _, ev := range res.Broadcasts {
		h.conns.BroadcastToSession(conn.SessionID, ev, nil)
	}
	h.publish(res)
}

// Execute runs a command that did not arrive on a socket, such as a REST
// call, and broadcasts its events to the whole room. The ack is returned to
// the caller instead of being sent anywhere.
func (h *Hub) Execute(ctx context.Context, eventType EventType, cmd Command) (Result, error) {
	unlock := h.seq.Lock(cmd.SessionID)
	defer unlock()

	res, err := h.dispatcher.Dispatch(ctx, eventType, cmd)
	if err != nil {
		h.logFailure(eventType, cmd, err)
		return Result{}, err
	}
	for _, ev := range res.Broadcasts {
		h.conns.BroadcastToSession(cmd.SessionID, ev, nil)
	}
	h.publish(res)
	return res, nil
}

func (h *Hub) publish(res Result) {
	if h.feed == nil {
		return
	}
	// acks can carry the actor's own vote, so only broadcasts leave the process
	h.feed.Enqueue(res.Broadcasts...)
}

func (h *Hub) sendError(conn *Connection, eventType EventType, err error) {
	ev, buildErr := NewEvent(conn.SessionID, EventError, ErrorPayload{
		Code:    ErrorCode(eventType, err),
		Message: clientMessage(err),
	}, h.clock.Now())
	if buildErr != nil {
		log.Error().Err(buildErr).Msg("failed to build error event")
		return
	}
	h.conns.SendTo(conn, ev)
}

func (h *Hub) logFailure(eventType EventType, cmd Command, err error) {
	evt := log.Warn()
	if errors.Is(err, session.ErrStore) {
		evt = log.Error()
	}
	evt.Err(err).
		Str("event_type", string(eventType)).
		Str("session_id", cmd.SessionID).
		Str("actor_id", cmd.ActorID).
		Msg("room event rejected")
}
