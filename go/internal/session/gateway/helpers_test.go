package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/session"
	"github.com/mcdev12/planning-poker/go/internal/session/repository"
)

type fixture struct {
	app        *session.App
	dispatcher *Dispatcher
	conns      *ConnectionManager
	hub        *Hub
	clock      *clockwork.FakeClock
	session    *models.Session
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	app := session.NewApp(repository.NewMemoryStore(), clock)
	s, err := app.CreateSession(context.Background(), session.CreateSessionRequest{DealerName: "Dee"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	dispatcher := NewDispatcher(app, policy, clock)
	conns := NewConnectionManager(DefaultConnectionConfig())
	hub := NewHub(dispatcher, conns, nil, clock)
	conns.SetHandler(hub)

	return &fixture{
		app:        app,
		dispatcher: dispatcher,
		conns:      conns,
		hub:        hub,
		clock:      clock,
		session:    s,
	}
}

// connect registers a socket-less connection whose queue the test reads directly.
func (f *fixture) connect(playerID string) *Connection {
	conn := f.conns.newConnection(f.session.ID, playerID, nil)
	f.conns.registerConnection(conn)
	return conn
}

func (f *fixture) send(t *testing.T, conn *Connection, eventType EventType, payload interface{}) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		data = raw
	}
	f.hub.HandleMessage(context.Background(), conn, ClientMessage{Type: eventType, Data: data})
}

func (f *fixture) join(t *testing.T, playerID, name string) *Connection {
	t.Helper()
	conn := f.connect(playerID)
	f.send(t, conn, EventSessionJoin, JoinPayload{Player: models.Player{ID: playerID, Name: name}})
	ev := next(t, conn)
	if ev.Type != EventSessionJoined {
		t.Fatalf("expected %s, got %s (%s)", EventSessionJoined, ev.Type, ev.Data)
	}
	return conn
}

// next pops the next queued event for conn.
func next(t *testing.T, conn *Connection) *Event {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		if !ok {
			t.Fatal("connection queue closed")
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return &ev
	default:
		t.Fatal("expected a queued event, found none")
		return nil
	}
}

func drain(conn *Connection) {
	for {
		select {
		case <-conn.Send:
		default:
			return
		}
	}
}

func expectEmpty(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("expected no queued events, got %s", data)
	default:
	}
}
