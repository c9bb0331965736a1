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

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("://nope")
	assert.Error(t, err)
}

func TestLock_OwnerID_Unique(t *testing.T) {
	client, _ := setupTestRedis(t)

	assert.NotEqual(t, NewLock(client).OwnerID(), NewLock(client).OwnerID())
}

func TestLock_Acquire(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := mr.Get(lockPrefix + "index-write")
	require.NoError(t, err)
	assert.Equal(t, lock.OwnerID(), value)
}

func TestLock_Acquire_HeldByOther(t *testing.T) {
	client, _ := setupTestRedis(t)
	first, second := NewLock(client), NewLock(client)
	ctx := context.Background()

	ok, err := first.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_Acquire_AfterExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	first, second := NewLock(client), NewLock(client)
	ctx := context.Background()

	ok, err := first.Acquire(ctx, "index-write", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = second.Acquire(ctx, "index-write", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Release(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx, "index-write"))
	assert.False(t, mr.Exists(lockPrefix+"index-write"))
}

func TestLock_Release_NotHeld(t *testing.T) {
	client, _ := setupTestRedis(t)

	assert.NoError(t, NewLock(client).Release(context.Background(), "index-write"))
}

func TestLock_Release_ByOtherOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	owner, other := NewLock(client), NewLock(client)
	ctx := context.Background()

	_, err := owner.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, other.Release(ctx, "index-write"))
	assert.True(t, mr.Exists(lockPrefix+"index-write"))
}

func TestLock_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "index-write", time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Extend(ctx, "index-write", time.Minute))
	assert.Greater(t, mr.TTL(lockPrefix+"index-write"), 30*time.Second)
}

func TestLock_Extend_NotHeld(t *testing.T) {
	client, _ := setupTestRedis(t)

	assert.Error(t, NewLock(client).Extend(context.Background(), "index-write", time.Minute))
}

func TestLock_Extend_ByOtherOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	owner, other := NewLock(client), NewLock(client)
	ctx := context.Background()

	_, err := owner.Acquire(ctx, "index-write", 10*time.Second)
	require.NoError(t, err)

	assert.Error(t, other.Extend(ctx, "index-write", time.Minute))
}

func TestLock_Ping(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)

	assert.NoError(t, lock.Ping(context.Background()))

	mr.Close()
	assert.Error(t, lock.Ping(context.Background()))
}
