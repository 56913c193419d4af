package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS poker_sessions (
    id         TEXT PRIMARY KEY,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS poker_sessions_created_at_idx ON poker_sessions (created_at);
`

// PostgresStore persists session snapshots as JSONB rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore ensures the schema exists and returns a store on pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure poker_sessions schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Put(ctx context.Context, s *models.Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
        INSERT INTO poker_sessions (id, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
    `, s.ID, string(data), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put session %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Session, bool, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM poker_sessions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	s, err := decodeSession(payload)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*models.Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT payload FROM poker_sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(payloads))
	for _, payload := range payloads {
		s, err := decodeSession(payload)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM poker_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM poker_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
