package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(nil, time.Hour, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" || s.Language != "en" || s.Status != StatusActive {
		t.Fatalf("unexpected session: %+v", s)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("Get() = %+v", got)
	}

	ended, err := m.End(ctx, s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Validate(ctx, s.ID); !errors.Is(err, ErrInactive) {
		t.Fatalf("Validate(ended) error = %v, want ErrInactive", err)
	}
}

func TestManagerValidateUnknown(t *testing.T) {
	m := NewManager(nil, time.Hour, nil)
	if _, err := m.Validate(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Validate() error = %v, want ErrNotFound", err)
	}
	if _, err := m.End(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End() error = %v, want ErrNotFound", err)
	}
}

func TestManagerValidateExpiresOldSession(t *testing.T) {
	m := NewManager(nil, time.Hour, nil)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	s, _ := m.Create(ctx, "nl")
	if _, err := m.Validate(ctx, s.ID); err != nil {
		t.Fatalf("Validate(fresh) error = %v", err)
	}

	m.now = func() time.Time { return start.Add(time.Hour + time.Second) }
	if _, err := m.Validate(ctx, s.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("Validate(old) error = %v, want ErrExpired", err)
	}
	got, _ := m.Get(ctx, s.ID)
	if got.Status != StatusEnded {
		t.Fatalf("expired session status = %q, want ended", got.Status)
	}
}

func TestManagerSetLanguageReturnsPrevious(t *testing.T) {
	m := NewManager(nil, time.Hour, nil)
	ctx := context.Background()
	s, _ := m.Create(ctx, "en")

	prev, err := m.SetLanguage(ctx, s.ID, "nl")
	if err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}
	if prev != "en" {
		t.Fatalf("previous language = %q, want en", prev)
	}
	got, _ := m.Get(ctx, s.ID)
	if got.Language != "nl" {
		t.Fatalf("language = %q, want nl", got.Language)
	}
}

func TestManagerActiveCount(t *testing.T) {
	m := NewManager(nil, time.Hour, nil)
	ctx := context.Background()
	a, _ := m.Create(ctx, "en")
	_, _ = m.Create(ctx, "en")
	_, _ = m.End(ctx, a.ID)

	if n := m.ActiveCount(ctx); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}
}

func TestManagerJanitorExpiresOld(t *testing.T) {
	m := NewManager(nil, 30*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := m.Create(ctx, "en")

	var (
		mu      sync.Mutex
		expired []string
	)
	m.SetExpireHook(func(ids []string) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, ids...)
	})
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != s.ID {
		t.Fatalf("expire hook ids = %v", expired)
	}
}
