package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionStoreTest(t *testing.T) (*miniredis.Miniredis, *SessionStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewSessionStore(client, time.Hour)
}

func TestSessionStore_Issue(t *testing.T) {
	mr, store := setupSessionStoreTest(t)

	token, err := store.Issue(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("session:"+token))
	assert.Equal(t, time.Hour, mr.TTL("session:"+token))

	other, err := store.Issue(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestSessionStore_TouchExtendsTTL(t *testing.T) {
	mr, store := setupSessionStoreTest(t)
	ctx := context.Background()

	token, err := store.Issue(ctx)
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	ok, err := store.Touch(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("session:"+token))

	ok, err = store.Touch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_Expiry(t *testing.T) {
	mr, store := setupSessionStoreTest(t)
	ctx := context.Background()

	token, err := store.Issue(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	ok, err := store.Touch(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_Revoke(t *testing.T) {
	mr, store := setupSessionStoreTest(t)
	ctx := context.Background()

	token, err := store.Issue(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))
	assert.False(t, mr.Exists("session:"+token))
}
