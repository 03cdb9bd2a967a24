package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses a pool owned by the caller; Close is a no-op.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS message (
			seq BIGSERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_message_session_ts ON message (session_id, timestamp, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msg Message) (Message, error) {
	if err := checkMessage(msg); err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO message (message_id, session_id, message_type, content, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if IsBlankSessionID(sessionID) {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT message_id, session_id, message_type, content, timestamp
		 FROM message WHERE session_id=$1 ORDER BY timestamp, seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = Role(role)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error { return nil }
