package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps sessions in the chat_session table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses a pool owned by the caller; Close is a no-op.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_session (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'active',
			language TEXT NOT NULL DEFAULT 'en',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_session_active ON chat_session (started_at) WHERE status = 'active';`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_session (session_id, status, language, started_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, string(sess.Status), sess.Language, sess.StartedAt, sess.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		sess   Session
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, status, language, started_at, last_activity_at
		 FROM chat_session WHERE session_id=$1`, id,
	).Scan(&sess.ID, &status, &sess.Language, &sess.StartedAt, &sess.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.Status = Status(status)
	return sess, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	return s.exec(ctx, "set session status", `UPDATE chat_session SET status=$2 WHERE session_id=$1`, id, string(status))
}

func (s *PostgresStore) SetLanguage(ctx context.Context, id, language string) error {
	return s.exec(ctx, "set session language", `UPDATE chat_session SET language=$2 WHERE session_id=$1`, id, language)
}

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "touch session", `UPDATE chat_session SET last_activity_at=$2 WHERE session_id=$1`, id, at)
}

func (s *PostgresStore) EndStartedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE chat_session SET status='ended'
		 WHERE status='active' AND started_at < $1
		 RETURNING session_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("end expired sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect expired sessions: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_session WHERE status='active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
