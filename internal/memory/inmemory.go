package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingSession = errors.New("message has no session id")
	ErrInvalidRole    = errors.New("message role must be user, bot or system")
)

// InMemoryStore is a simple in-process message store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]Message)}
}

func (s *InMemoryStore) Append(_ context.Context, msg Message) (Message, error) {
	if err := checkMessage(msg); err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return msg, nil
}

func (s *InMemoryStore) Messages(_ context.Context, sessionID string) ([]Message, error) {
	if IsBlankSessionID(sessionID) {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	out := make([]Message, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
