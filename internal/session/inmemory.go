package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]Session)}
}

func (s *InMemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	return s.update(id, func(sess *Session) { sess.Status = status })
}

func (s *InMemoryStore) SetLanguage(_ context.Context, id, language string) error {
	return s.update(id, func(sess *Session) { sess.Language = language })
}

func (s *InMemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(sess *Session) { sess.LastActivityAt = at })
}

func (s *InMemoryStore) EndStartedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ended []string
	for id, sess := range s.sessions {
		if sess.Status != StatusActive || !sess.StartedAt.Before(cutoff) {
			continue
		}
		sess.Status = StatusEnded
		s.sessions[id] = sess
		ended = append(ended, id)
	}
	return ended, nil
}

func (s *InMemoryStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(&sess)
	s.sessions[id] = sess
	return nil
}
