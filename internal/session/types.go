package session

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// DefaultRetention is how long a session stays usable after it starts.
const DefaultRetention = 72 * time.Hour

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrInactive = errors.New("session inactive")
)

// Session is one chat conversation.
type Session struct {
	ID             string    `json:"session_id"`
	Status         Status    `json:"status"`
	Language       string    `json:"language"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Active reports whether the session may accept turns at now under retention.
func (s Session) Active(now time.Time, retention time.Duration) bool {
	return s.Status == StatusActive && now.Sub(s.StartedAt) < retention
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	SetStatus(ctx context.Context, id string, status Status) error
	SetLanguage(ctx context.Context, id, language string) error
	Touch(ctx context.Context, id string, at time.Time) error
	// EndStartedBefore ends active sessions older than cutoff and returns their ids.
	EndStartedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	CountActive(ctx context.Context) (int, error)
	Close() error
}

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	Language string `json:"language"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID   string    `json:"session_id"`
	Status      Status    `json:"status"`
	Language    string    `json:"language"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	RetentionMS int64     `json:"retention_ms"`
}
