package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/bravurbot/internal/pgtest"
)

func TestPostgresStoreKeepsInsertOrder(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	store, err := NewStore(ctx, pool)
	require.NoError(t, err)
	_, ok := store.(*PostgresStore)
	require.True(t, ok, "NewStore with a pool should return *PostgresStore")

	// Same timestamp on purpose: ties must fall back to insert order.
	at := time.Now().UTC().Truncate(time.Millisecond)
	for _, m := range []Message{
		{SessionID: "s1", Role: RoleUser, Content: "What does Bravur do?", CreatedAt: at},
		{SessionID: "s1", Role: RoleBot, Content: "Bravur is an IT consultancy.", CreatedAt: at},
		{SessionID: "s2", Role: RoleUser, Content: "other session", CreatedAt: at},
		{SessionID: "s1", Role: RoleSystem, Content: "[SYSTEM] Language changed from en to nl.", CreatedAt: at.Add(time.Second)},
	} {
		_, err := store.Append(ctx, m)
		require.NoError(t, err)
	}

	msgs, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleBot, msgs[1].Role)
	assert.Equal(t, RoleSystem, msgs[2].Role)
	assert.NotEmpty(t, msgs[0].ID)

	_, err = store.Append(ctx, Message{SessionID: "None", Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrMissingSession)

	_, err = store.Append(ctx, Message{SessionID: "s1", Role: "assistant", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	empty, err := store.Messages(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
