package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/sqlc-dev/pqtype"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/sqlutil"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS poker_sessions (
    id               TEXT PRIMARY KEY,
    dealer_id        TEXT NOT NULL,
    status           TEXT NOT NULL,
    current_round_id TEXT,
    payload          BLOB NOT NULL,
    last_statistics  BLOB,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS poker_sessions_created_at_idx ON poker_sessions (created_at);
`

// SQLiteStore persists sessions in a local SQLite file. The current round
// pointer lives in its own column and the statistics of a revealed current
// round are projected into last_statistics for ad-hoc reporting.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sqliteQueries binds the store's statements to one transaction.
type sqliteQueries struct {
	tx *sql.Tx
}

func newSQLiteQueries(tx *sql.Tx) *sqliteQueries {
	return &sqliteQueries{tx: tx}
}

func (q *sqliteQueries) upsertSession(ctx context.Context, row sessionRow) error {
	_, err := q.tx.ExecContext(ctx, `
        INSERT INTO poker_sessions (
          id, dealer_id, status, current_round_id, payload, last_statistics, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
          dealer_id = excluded.dealer_id,
          status = excluded.status,
          current_round_id = excluded.current_round_id,
          payload = excluded.payload,
          last_statistics = excluded.last_statistics,
          updated_at = excluded.updated_at
    `,
		row.ID, row.DealerID, row.Status, sqlutil.ToSqlString(row.CurrentRoundID),
		row.Payload, sqlutil.ToNullRawMessage(row.LastStatistics),
		sqlutil.ToMillis(row.CreatedAt), sqlutil.ToMillis(row.UpdatedAt),
	)
	return err
}

func (q *sqliteQueries) deleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := q.tx.ExecContext(ctx, `DELETE FROM poker_sessions WHERE created_at < ?`, sqlutil.ToMillis(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// sessionRow is the column layout of poker_sessions.
type sessionRow struct {
	ID             string
	DealerID       string
	Status         string
	CurrentRoundID *string
	Payload        []byte
	LastStatistics []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func sessionToRow(s *models.Session) (sessionRow, error) {
	payload, err := encodeSession(s)
	if err != nil {
		return sessionRow{}, err
	}
	row := sessionRow{
		ID:        s.ID,
		DealerID:  s.DealerID,
		Status:    string(s.Status),
		Payload:   payload,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.CurrentRound != nil {
		id := s.CurrentRound.ID
		row.CurrentRoundID = &id
		if s.CurrentRound.Statistics != nil {
			stats, err := json.Marshal(s.CurrentRound.Statistics)
			if err != nil {
				return sessionRow{}, fmt.Errorf("failed to encode statistics: %w", err)
			}
			row.LastStatistics = stats
		}
	}
	return row, nil
}

func (s *SQLiteStore) Put(ctx context.Context, session *models.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}
	err = sqlutil.Run(ctx, s.db, newSQLiteQueries, func(q *sqliteQueries) error {
		return q.upsertSession(ctx, row)
	})
	if err != nil {
		return fmt.Errorf("failed to put session %s: %w", session.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, current_round_id FROM poker_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload, current_round_id FROM poker_sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM poker_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := sqlutil.Run(ctx, s.db, newSQLiteQueries, func(q *sqliteQueries) error {
		n, err := q.deleteCreatedBefore(ctx, cutoff)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return removed, nil
}

// LastStatistics returns the statistics projected for a session's current
// round, or nil when that round has not been revealed.
func (s *SQLiteStore) LastStatistics(ctx context.Context, id string) (*models.VoteStatistics, error) {
	var raw pqtype.NullRawMessage
	err := s.db.QueryRowContext(ctx, `SELECT last_statistics FROM poker_sessions WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics for session %s: %w", id, err)
	}
	data := sqlutil.FromNullRawMessage(raw)
	if data == nil {
		return nil, nil
	}
	var stats models.VoteStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		payload        []byte
		currentRoundID sql.NullString
	)
	if err := row.Scan(&payload, &currentRoundID); err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(payload)
	if err != nil {
		return nil, err
	}
	snap.CurrentRoundID = ""
	if id := sqlutil.FromSqlStringPtr(currentRoundID); id != nil {
		snap.CurrentRoundID = *id
	}
	return snap.toModel()
}
