package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/session"
)

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestDispatchJoin(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: true})
	ctx := context.Background()

	res, err := f.dispatcher.Dispatch(ctx, EventSessionJoin, Command{
		SessionID: f.session.ID,
		Payload:   raw(t, JoinPayload{Player: models.Player{Name: "Pat"}}),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Join || res.ActorID == "" || res.ActorID == f.session.DealerID {
		t.Fatalf("expected join with a fresh player id, got %+v", res)
	}
	if res.Ack.Type != EventSessionJoined || len(res.Broadcasts) != 1 {
		t.Fatalf("unexpected result: ack=%s broadcasts=%d", res.Ack.Type, len(res.Broadcasts))
	}

	var joined PlayerJoinedPayload
	if err := res.Broadcasts[0].ParsePayload(&joined); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if joined.Player.ID != res.ActorID || joined.PlayerCount != 2 || joined.Player.Avatar != models.DefaultPlayerAvatar {
		t.Fatalf("unexpected player:joined payload: %+v", joined)
	}
}

func TestDispatchJoinUsesConnectionPlayerID(t *testing.T) {
	f := newFixture(t, Policy{})
	res, err := f.dispatcher.Dispatch(context.Background(), EventSessionJoin, Command{
		SessionID: f.session.ID,
		ActorID:   "p-from-query",
		Payload:   raw(t, JoinPayload{Player: models.Player{Name: "Pat"}}),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.ActorID != "p-from-query" {
		t.Fatalf("expected actor id from the connection, got %q", res.ActorID)
	}
}

func TestDispatchVoteHidesValueFromRoom(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: true})
	ctx := context.Background()
	if _, err := f.app.StartRound(ctx, f.session.ID, session.StartRoundRequest{}); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	res, err := f.dispatcher.Dispatch(ctx, EventVotePlace, Command{
		SessionID: f.session.ID,
		ActorID:   f.session.DealerID,
		Payload:   json.RawMessage(`{"value":5}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var accepted VoteAcceptedPayload
	if err := res.Ack.ParsePayload(&accepted); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if accepted.Value == nil || *accepted.Value != models.EstimateFive {
		t.Fatalf("expected ack to echo the value, got %+v", accepted)
	}

	var placed VotePlacedPayload
	if err := res.Broadcasts[0].ParsePayload(&placed); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if placed.VotedCount != 1 {
		t.Fatalf("expected votedCount 1, got %d", placed.VotedCount)
	}

	bc := string(res.Broadcasts[0].Data)
	if strings.Contains(bc, "value") || !strings.Contains(bc, `"hasVoted":true`) {
		t.Fatalf("vote:placed must not expose the value: %s", bc)
	}
}

func TestDispatchVoteRetraction(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	if _, err := f.app.StartRound(ctx, f.session.ID, session.StartRoundRequest{}); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	res, err := f.dispatcher.Dispatch(ctx, EventVotePlace, Command{
		SessionID: f.session.ID,
		ActorID:   f.session.DealerID,
		Payload:   json.RawMessage(`{"value":null}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var placed VotePlacedPayload
	if err := res.Broadcasts[0].ParsePayload(&placed); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if placed.HasVoted {
		t.Fatal("expected hasVoted=false after retraction")
	}
}

func TestDispatchDealerOnly(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: true})
	ctx := context.Background()
	cmd := Command{SessionID: f.session.ID, ActorID: "someone-else"}

	for _, et := range []EventType{EventRoundStart, EventRoundReveal, EventRoundCancel} {
		if _, err := f.dispatcher.Dispatch(ctx, et, cmd); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", et, err)
		}
	}

	got, _ := f.app.GetSession(ctx, f.session.ID)
	if got.CurrentRound != nil {
		t.Fatal("forbidden start must not create a round")
	}

	cmd.ActorID = f.session.DealerID
	if _, err := f.dispatcher.Dispatch(ctx, EventRoundStart, cmd); err != nil {
		t.Fatalf("dealer start: %v", err)
	}
}

func TestDispatchOpenPolicy(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: false})
	_, err := f.dispatcher.Dispatch(context.Background(), EventRoundStart, Command{SessionID: f.session.ID, ActorID: "anyone"})
	if err != nil {
		t.Fatalf("expected anyone to start a round, got %v", err)
	}
}

func TestDispatchRevealExposesVotes(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: true})
	ctx := context.Background()
	dealer := Command{SessionID: f.session.ID, ActorID: f.session.DealerID}

	if _, err := f.dispatcher.Dispatch(ctx, EventRoundStart, dealer); err != nil {
		t.Fatalf("start: %v", err)
	}
	vote := dealer
	vote.Payload = json.RawMessage(`{"value":3}`)
	if _, err := f.dispatcher.Dispatch(ctx, EventVotePlace, vote); err != nil {
		t.Fatalf("vote: %v", err)
	}

	res, err := f.dispatcher.Dispatch(ctx, EventRoundReveal, dealer)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	var revealed RoundRevealedPayload
	if err := res.Broadcasts[0].ParsePayload(&revealed); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(revealed.Votes) != 1 || revealed.Votes[0].Value == nil || *revealed.Votes[0].Value != 3 {
		t.Fatalf("expected revealed vote of 3, got %+v", revealed.Votes)
	}
	if revealed.Stats.Median != 3 || !revealed.Stats.Consensus {
		t.Fatalf("unexpected stats: %+v", revealed.Stats)
	}
}

func TestDispatchErrors(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	tests := []struct {
		name      string
		eventType EventType
		cmd       Command
		code      string
	}{
		{"unknown event", "dance", Command{SessionID: f.session.ID}, CodeUnknownEvent},
		{"bad payload", EventVotePlace, Command{SessionID: f.session.ID, ActorID: f.session.DealerID, Payload: json.RawMessage(`{"value":"five"}`)}, CodeBadRequest},
		{"vote without round", EventVotePlace, Command{SessionID: f.session.ID, ActorID: f.session.DealerID, Payload: json.RawMessage(`{"value":5}`)}, CodeVoteFailed},
		{"leave before join", EventSessionLeave, Command{SessionID: f.session.ID}, CodeLeaveFailed},
		{"join unknown session", EventSessionJoin, Command{SessionID: "nope", Payload: json.RawMessage(`{"player":{"name":"Pat"}}`)}, CodeJoinFailed},
		{"join without name", EventSessionJoin, Command{SessionID: f.session.ID, Payload: json.RawMessage(`{"player":{}}`)}, CodeJoinFailed},
		{"reveal without round", EventRoundReveal, Command{SessionID: f.session.ID}, CodeRevealFailed},
		{"cancel without round", EventRoundCancel, Command{SessionID: f.session.ID}, CodeCancelRoundFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Dispatch(ctx, tt.eventType, tt.cmd)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := ErrorCode(tt.eventType, err); code != tt.code {
				t.Fatalf("expected code %s, got %s (%v)", tt.code, code, err)
			}
		})
	}
}

func TestDisconnectIgnoresPlayersWhoLeft(t *testing.T) {
	f := newFixture(t, Policy{})
	res, err := f.dispatcher.Disconnect(context.Background(), f.session.ID, "ghost")
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if len(res.Broadcasts) != 0 {
		t.Fatalf("expected no broadcast, got %d", len(res.Broadcasts))
	}
}

func TestDispatchLeaveRequiresMembership(t *testing.T) {
	f := newFixture(t, Policy{})
	_, err := f.dispatcher.Dispatch(context.Background(), EventSessionLeave, Command{
		SessionID: f.session.ID,
		ActorID:   "stranger",
	})
	if !errors.Is(err, session.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if code := ErrorCode(EventSessionLeave, err); code != CodeLeaveFailed {
		t.Fatalf("expected %s, got %s", CodeLeaveFailed, code)
	}
}

func TestDispatchDealerOnlyAfterDealerLeft(t *testing.T) {
	f := newFixture(t, Policy{DealerOnly: true})
	ctx := context.Background()
	cmd := Command{SessionID: f.session.ID, ActorID: f.session.DealerID}

	if _, err := f.dispatcher.Dispatch(ctx, EventSessionLeave, cmd); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := f.dispatcher.Dispatch(ctx, EventRoundStart, cmd); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a departed dealer, got %v", err)
	}

	cmd.Payload = raw(t, JoinPayload{Player: models.Player{ID: f.session.DealerID, Name: "Dee"}})
	if _, err := f.dispatcher.Dispatch(ctx, EventSessionJoin, cmd); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	cmd.Payload = nil
	if _, err := f.dispatcher.Dispatch(ctx, EventRoundStart, cmd); err != nil {
		t.Fatalf("rejoined dealer start: %v", err)
	}
}
