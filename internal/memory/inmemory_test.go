package memory

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Append(ctx, Message{SessionID: "s1", Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	stored, err := s.Append(ctx, Message{SessionID: "s1", Role: RoleBot, Content: "hi there"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Fatalf("Append() should fill id and timestamp: %+v", stored)
	}

	got, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "hi there" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestInMemoryStoreIsolatesSessions(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_, _ = s.Append(ctx, Message{SessionID: "a", Role: RoleUser, Content: "one"})
	_, _ = s.Append(ctx, Message{SessionID: "b", Role: RoleUser, Content: "two"})

	got, _ := s.Messages(ctx, "a")
	if len(got) != 1 || got[0].Content != "one" {
		t.Fatalf("Messages(a) = %+v", got)
	}
}

func TestInMemoryStoreBlankSession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if _, err := s.Append(ctx, Message{SessionID: "None", Role: RoleUser, Content: "x"}); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("Append() error = %v, want ErrMissingSession", err)
	}
	got, err := s.Messages(ctx, "null")
	if err != nil || len(got) != 0 {
		t.Fatalf("Messages(null) = %v, %v; want empty", got, err)
	}
}

func TestInMemoryStoreRejectsUnknownRole(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, role := range []Role{"", "assistant", "tool"} {
		if _, err := s.Append(ctx, Message{SessionID: "s", Role: role, Content: "x"}); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("Append(role=%q) error = %v, want ErrInvalidRole", role, err)
		}
	}
	if got, _ := s.Messages(ctx, "s"); len(got) != 0 {
		t.Fatalf("rejected messages were stored: %+v", got)
	}
}

func TestInMemoryStoreReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_, _ = s.Append(ctx, Message{SessionID: "s", Role: RoleUser, Content: "original"})

	got, _ := s.Messages(ctx, "s")
	got[0].Content = "mutated"

	again, _ := s.Messages(ctx, "s")
	if again[0].Content != "original" {
		t.Fatalf("stored message was mutated through returned slice")
	}
}
