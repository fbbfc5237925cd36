package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedisIntegration runs the lock against a real Redis container.
func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	l := New(client, 2*time.Second)

	ok, err := l.TryLock(ctx, "promo_lock:10", "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "promo_lock:10", "second")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "promo_lock:10", "first"))

	ok, err = l.TryLock(ctx, "promo_lock:10", "second")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		held, err := l.Held(ctx, "promo_lock:10")
		return err == nil && !held
	}, 5*time.Second, 100*time.Millisecond, "lock should expire after its TTL")
}
