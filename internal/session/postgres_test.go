package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/bravurbot/internal/pgtest"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	store, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)

	m := NewManager(store, time.Hour, nil)
	s, err := m.Create(ctx, "en")
	require.NoError(t, err)

	prev, err := m.SetLanguage(ctx, s.ID, "nl")
	require.NoError(t, err)
	assert.Equal(t, "en", prev)

	got, err := m.Validate(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "nl", got.Language)

	old := Session{
		ID:             "old-session",
		Status:         StatusActive,
		Language:       "en",
		StartedAt:      time.Now().Add(-2 * time.Hour).UTC(),
		LastActivityAt: time.Now().Add(-2 * time.Hour).UTC(),
	}
	require.NoError(t, store.Create(ctx, old))

	ids, err := store.EndStartedBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old-session"}, ids)

	n, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
