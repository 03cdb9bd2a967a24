// Package feedback stores one satisfaction rating per chat session.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	MinRating = 1
	MaxRating = 5
	// MaxCommentChars bounds free-text comments.
	MaxCommentChars = 2000
)

var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrMissingSession = errors.New("feedback requires a session id")
)

// Feedback is the latest rating left for a session.
type Feedback struct {
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate normalizes f and checks its fields.
func (f *Feedback) Validate() error {
	f.SessionID = strings.TrimSpace(f.SessionID)
	f.Comment = strings.TrimSpace(f.Comment)
	if f.SessionID == "" {
		return ErrMissingSession
	}
	if f.Rating < MinRating || f.Rating > MaxRating {
		return ErrInvalidRating
	}
	if r := []rune(f.Comment); len(r) > MaxCommentChars {
		f.Comment = string(r[:MaxCommentChars])
	}
	return nil
}

// Store upserts feedback keyed by session.
type Store interface {
	Save(ctx context.Context, f Feedback) (Feedback, error)
	Get(ctx context.Context, sessionID string) (Feedback, bool, error)
	Close() error
}

// NewStore creates a postgres-backed store when a pool is available, otherwise in-memory.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, pool)
}

type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]Feedback
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]Feedback)}
}

func (s *InMemoryStore) Save(_ context.Context, f Feedback) (Feedback, error) {
	if err := f.Validate(); err != nil {
		return Feedback{}, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[f.SessionID] = f
	return f, nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID string) (Feedback, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.items[sessionID]
	return f, ok, nil
}

func (s *InMemoryStore) Close() error { return nil }

// PostgresStore keeps feedback in the feedback table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	const stmt = `CREATE TABLE IF NOT EXISTS feedback (
		session_id TEXT PRIMARY KEY,
		rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, f Feedback) (Feedback, error) {
	if err := f.Validate(); err != nil {
		return Feedback{}, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (session_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE
		 SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, created_at = EXCLUDED.created_at`,
		f.SessionID, f.Rating, f.Comment, f.CreatedAt,
	)
	if err != nil {
		return Feedback{}, fmt.Errorf("save feedback: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Feedback, bool, error) {
	var f Feedback
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, rating, comment, created_at FROM feedback WHERE session_id=$1`, sessionID)
	if err != nil {
		return Feedback{}, false, fmt.Errorf("get feedback: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Feedback{}, false, rows.Err()
	}
	if err := rows.Scan(&f.SessionID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
		return Feedback{}, false, fmt.Errorf("scan feedback: %w", err)
	}
	return f, true, nil
}

func (s *PostgresStore) Close() error { return nil }
