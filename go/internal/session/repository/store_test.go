package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/session"
	"github.com/mcdev12/planning-poker/go/internal/session/repository"
)

var (
	_ session.SessionStore = (*repository.MemoryStore)(nil)
	_ session.SessionStore = (*repository.RedisStore)(nil)
	_ session.SessionStore = (*repository.PostgresStore)(nil)
	_ session.SessionStore = (*repository.SQLiteStore)(nil)

	_ session.StatisticsReader = (*repository.SQLiteStore)(nil)
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSession(id string, createdAt time.Time) *models.Session {
	five := models.EstimateFive
	placed := createdAt.Add(time.Minute)
	old := &models.Round{
		ID:        id + "-r1",
		SessionID: id,
		Votes:     []models.Vote{{PlayerID: "dealer", PlayerName: "Dee"}},
		Status:    models.RoundStatusCancelled,
		StartedAt: createdAt,
	}
	current := &models.Round{
		ID:        id + "-r2",
		SessionID: id,
		StoryName: "Login page",
		Votes: []models.Vote{
			{PlayerID: "dealer", PlayerName: "Dee", Value: &five, Voted: true, PlacedAt: &placed},
			{PlayerID: "p2", PlayerName: "Pat"},
		},
		Status:    models.RoundStatusActive,
		StartedAt: createdAt.Add(time.Second),
	}
	return &models.Session{
		ID:       id,
		DealerID: "dealer",
		Players: []models.Player{
			{ID: "dealer", Name: "Dee", Avatar: models.DefaultDealerAvatar, IsDealer: true, IsConnected: true, JoinedAt: createdAt},
			{ID: "p2", Name: "Pat", Avatar: models.DefaultPlayerAvatar, IsConnected: true, JoinedAt: createdAt},
		},
		CurrentRound: current,
		Rounds:       []*models.Round{old, current},
		Status:       models.SessionStatusVoting,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func runStoreSuite(t *testing.T, store session.SessionStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, found, err := store.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if found {
			t.Fatal("expected missing session to be not found")
		}
	})

	t.Run("round trip keeps current round linked", func(t *testing.T) {
		in := sampleSession("s-roundtrip", baseTime)
		if err := store.Put(ctx, in); err != nil {
			t.Fatalf("put: %v", err)
		}
		out, found, err := store.Get(ctx, in.ID)
		if err != nil || !found {
			t.Fatalf("get: found=%v err=%v", found, err)
		}
		if out.DealerID != "dealer" || len(out.Players) != 2 || len(out.Rounds) != 2 {
			t.Fatalf("unexpected session: %+v", out)
		}
		if out.CurrentRound == nil || out.CurrentRound != out.Rounds[1] {
			t.Fatal("expected current round to be the last round in history")
		}
		v := out.CurrentRound.FindVote("dealer")
		if v == nil || v.Value == nil || *v.Value != models.EstimateFive {
			t.Fatalf("expected dealer vote of 5, got %+v", v)
		}
		if !out.CreatedAt.Equal(baseTime) {
			t.Fatalf("expected createdAt %v, got %v", baseTime, out.CreatedAt)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := sampleSession("s-overwrite", baseTime)
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("put: %v", err)
		}
		s.CurrentRound = nil
		s.Status = models.SessionStatusWaiting
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("put: %v", err)
		}
		out, _, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if out.CurrentRound != nil || out.Status != models.SessionStatusWaiting {
			t.Fatalf("expected overwritten session, got status %s", out.Status)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := sampleSession("s-delete", baseTime)
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("put: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := store.Delete(ctx, s.ID); err != nil {
				t.Fatalf("delete #%d: %v", i+1, err)
			}
		}
		if _, found, _ := store.Get(ctx, s.ID); found {
			t.Fatal("expected session to be gone")
		}
	})

	t.Run("delete older than", func(t *testing.T) {
		stale := sampleSession("s-stale", baseTime.Add(-48*time.Hour))
		fresh := sampleSession("s-fresh", baseTime)
		for _, s := range []*models.Session{stale, fresh} {
			if err := store.Put(ctx, s); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		n, err := store.DeleteOlderThan(ctx, baseTime.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("delete older than: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 removed, got %d", n)
		}
		if _, found, _ := store.Get(ctx, stale.ID); found {
			t.Fatal("expected stale session removed")
		}
		if _, found, _ := store.Get(ctx, fresh.ID); !found {
			t.Fatal("expected fresh session kept")
		}
	})

	t.Run("list", func(t *testing.T) {
		all, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		ids := map[string]bool{}
		for _, s := range all {
			ids[s.ID] = true
		}
		for _, want := range []string{"s-roundtrip", "s-overwrite", "s-fresh"} {
			if !ids[want] {
				t.Fatalf("expected %s in list, got %v", want, ids)
			}
		}
		if ids["s-delete"] || ids["s-stale"] {
			t.Fatalf("deleted sessions listed: %v", ids)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, repository.NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	s := sampleSession("s1", baseTime)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Players[0].Name = "changed after put"

	got, _, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.CurrentRound.Votes[1].PlayerName = "changed after get"

	again, _, _ := store.Get(ctx, "s1")
	if again.Players[0].Name != "Dee" || again.CurrentRound.Votes[1].PlayerName != "Pat" {
		t.Fatal("store state leaked to callers")
	}
}

func newRedisStore(t *testing.T, ttl time.Duration) (*repository.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	runStoreSuite(t, store)
}

func TestRedisStoreExpiredSnapshotsDropOutOfList(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Hour)

	if err := store.Put(ctx, sampleSession("s1", baseTime)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected expired session to be skipped, got %d", len(all))
	}
	if n, _ := mr.ZMembers("poker:sessions"); len(n) != 0 {
		t.Fatalf("expected index pruned, got %v", n)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := repository.OpenSQLiteStore(filepath.Join(t.TempDir(), "poker.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	runStoreSuite(t, store)
}

func TestSQLiteStoreProjectsRevealedStatistics(t *testing.T) {
	ctx := context.Background()
	store, err := repository.OpenSQLiteStore(filepath.Join(t.TempDir(), "poker.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := sampleSession("s1", baseTime)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("put: %v", err)
	}
	stats, err := store.LastStatistics(ctx, "s1")
	if err != nil {
		t.Fatalf("last statistics: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected no statistics before reveal, got %+v", stats)
	}

	s.CurrentRound.Status = models.RoundStatusRevealed
	s.CurrentRound.Statistics = &models.VoteStatistics{
		Average: 5, Median: 5, Mode: models.Mode{5},
		Range: models.Range{Min: 5, Max: 5}, Consensus: true, Outliers: []string{},
	}
	s.Status = models.SessionStatusRevealed
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("put: %v", err)
	}
	stats, err = store.LastStatistics(ctx, "s1")
	if err != nil {
		t.Fatalf("last statistics: %v", err)
	}
	if stats == nil || stats.Average != 5 || !stats.Consensus {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestSQLiteStoreServesAppStatistics(t *testing.T) {
	store, err := repository.OpenSQLiteStore(filepath.Join(t.TempDir(), "poker.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	app := session.NewApp(store, nil)
	s, err := app.CreateSession(ctx, session.CreateSessionRequest{DealerName: "Dee"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := app.StartRound(ctx, s.ID, session.StartRoundRequest{}); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	seven := models.EstimateSeven
	if _, err := app.PlaceVote(ctx, s.ID, s.DealerID, &seven); err != nil {
		t.Fatalf("PlaceVote: %v", err)
	}
	if _, err := app.RevealVotes(ctx, s.ID); err != nil {
		t.Fatalf("RevealVotes: %v", err)
	}

	stats, err := app.LastStatistics(ctx, s.ID)
	if err != nil {
		t.Fatalf("LastStatistics: %v", err)
	}
	if stats == nil || stats.Average != 7 || stats.Range.Max != 7 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := repository.OpenSQLiteStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POKER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POKER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS poker_sessions`); err != nil {
		t.Fatalf("reset table: %v", err)
	}

	store, err := repository.NewPostgresStore(ctx, pool)
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	runStoreSuite(t, store)
}
