package memory

import (
	"context"
	"fmt"
	"time"
)

// Role tags who authored a stored message.
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the three known tags.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a single persisted chat line. Messages are append-only.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store persists and retrieves session message history.
type Store interface {
	Append(ctx context.Context, msg Message) (Message, error)
	// Messages returns the session history in chronological order.
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	Close() error
}

// IsBlankSessionID treats the literal placeholders some widget builds send as missing.
func IsBlankSessionID(id string) bool {
	switch id {
	case "", "None", "null", "undefined":
		return true
	default:
		return false
	}
}

func checkMessage(msg Message) error {
	if IsBlankSessionID(msg.SessionID) {
		return ErrMissingSession
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	return nil
}
