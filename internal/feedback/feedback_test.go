package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/bravurbot/internal/pgtest"
)

func TestFeedbackValidate(t *testing.T) {
	cases := []struct {
		name string
		in   Feedback
		want error
	}{
		{"ok", Feedback{SessionID: "s", Rating: 4}, nil},
		{"low", Feedback{SessionID: "s", Rating: 0}, ErrInvalidRating},
		{"high", Feedback{SessionID: "s", Rating: 6}, ErrInvalidRating},
		{"no session", Feedback{SessionID: "  ", Rating: 3}, ErrMissingSession},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := tc.in
			if err := f.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFeedbackValidateTruncatesComment(t *testing.T) {
	f := Feedback{SessionID: "s", Rating: 5, Comment: strings.Repeat("x", MaxCommentChars+10)}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(f.Comment) != MaxCommentChars {
		t.Fatalf("len(Comment) = %d, want %d", len(f.Comment), MaxCommentChars)
	}
}

func TestInMemoryStoreUpserts(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Save(ctx, Feedback{SessionID: "s", Rating: 2, Comment: "meh"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Save(ctx, Feedback{SessionID: "s", Rating: 5}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := s.Get(ctx, "s")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Rating != 5 || got.Comment != "" {
		t.Fatalf("Get() = %+v, want latest rating", got)
	}
	if _, err := s.Save(ctx, Feedback{SessionID: "s", Rating: 9}); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("Save(9) error = %v", err)
	}
}

func TestPostgresStoreUpserts(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)

	_, err = s.Save(ctx, Feedback{SessionID: "s", Rating: 1, Comment: "bad"})
	require.NoError(t, err)
	_, err = s.Save(ctx, Feedback{SessionID: "s", Rating: 4, Comment: "better"})
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, "better", got.Comment)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
