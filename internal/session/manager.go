package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the session lifecycle on top of a Store.
type Manager struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	onExpire func(ids []string)
}

func NewManager(store Store, retention time.Duration, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewInMemoryStore()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Retention returns the maximum session age.
func (m *Manager) Retention() time.Duration { return m.retention }

// SetExpireHook registers a callback for sessions ended by the janitor.
func (m *Manager) SetExpireHook(hook func(ids []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(ctx context.Context, language string) (Session, error) {
	now := m.now()
	s := Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		Language:       normalizeLanguage(language),
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return Session{}, err
	}
	m.logger.Info("session created", "session_id", s.ID, "language", s.Language)
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.store.Get(ctx, id)
}

// Validate returns the session when it can accept turns. A session past
// retention is ended on the spot and reported as ErrExpired.
func (m *Manager) Validate(ctx context.Context, id string) (Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusActive {
		return s, ErrInactive
	}
	if !s.Active(m.now(), m.retention) {
		if err := m.store.SetStatus(ctx, id, StatusEnded); err != nil {
			m.logger.Warn("end expired session failed", "session_id", id, "error", err)
		}
		s.Status = StatusEnded
		return s, ErrExpired
	}
	return s, nil
}

// Touch records activity on a session.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.Touch(ctx, id, m.now())
}

func (m *Manager) End(ctx context.Context, id string) (Session, error) {
	if err := m.store.SetStatus(ctx, id, StatusEnded); err != nil {
		return Session{}, err
	}
	m.logger.Info("session ended", "session_id", id)
	return m.store.Get(ctx, id)
}

// SetLanguage switches the session language and returns the previous one.
func (m *Manager) SetLanguage(ctx context.Context, id, language string) (string, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	next := normalizeLanguage(language)
	if err := m.store.SetLanguage(ctx, id, next); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	return s.Language, nil
}

func (m *Manager) ActiveCount(ctx context.Context) int {
	n, err := m.store.CountActive(ctx)
	if err != nil {
		m.logger.Warn("count active sessions failed", "error", err)
		return 0
	}
	return n
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireOld(ctx)
			}
		}
	}()
}

func (m *Manager) expireOld(ctx context.Context) {
	ids, err := m.store.EndStartedBefore(ctx, m.now().Add(-m.retention))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("session janitor failed", "error", err)
		}
		return
	}
	if len(ids) == 0 {
		return
	}
	m.logger.Info("expired sessions", "count", len(ids))

	m.mu.RLock()
	hook := m.onExpire
	m.mu.RUnlock()
	if hook != nil {
		hook(ids)
	}
}

func normalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return "en"
	}
	return language
}
