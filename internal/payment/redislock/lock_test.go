package redislock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis and a client connected to it.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestTryLockAndUnlock(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	l := New(client, time.Minute)

	ok, err := l.TryLock(ctx, "promo_lock:1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "promo_lock:1", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	// Unlock by a non-owner leaves the lock in place.
	require.NoError(t, l.Unlock(ctx, "promo_lock:1", "owner-b"))
	held, err := l.Held(ctx, "promo_lock:1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, l.Unlock(ctx, "promo_lock:1", "owner-a"))
	held, err = l.Held(ctx, "promo_lock:1")
	require.NoError(t, err)
	assert.False(t, held)

	ok, err = l.TryLock(ctx, "promo_lock:1", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockMissingKey(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.NoError(t, New(client, time.Minute).Unlock(context.Background(), "promo_lock:404", "x"))
}

func TestLockExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	l := New(client, 30*time.Second)

	ok, err := l.TryLock(ctx, "promo_lock:2", "crashed")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = l.TryLock(ctx, "promo_lock:2", "next")
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable")
}

func TestConcurrentTryLock(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := New(client, time.Minute)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := l.TryLock(context.Background(), "promo_lock:3", string(rune('a'+i)))
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestDefaultTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := New(client, 0)
	ok, err := l.TryLock(context.Background(), "promo_lock:4", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("promo_lock:4"))
}
