//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisRenewalLock(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	t.Run("second holder waits for release", func(t *testing.T) {
		a := NewRedisRenewalLock(client, time.Second, zap.NewNop())
		b := NewRedisRenewalLock(client, time.Second, zap.NewNop())

		unlock, err := a.Lock(ctx, "tokyo-1")
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			unlockB, err := b.Lock(ctx, "tokyo-1")
			if assert.NoError(t, err) {
				close(acquired)
				unlockB()
			}
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired while held")
		case <-time.After(150 * time.Millisecond):
		}
		unlock()

		select {
		case <-acquired:
		case <-time.After(2 * time.Second):
			t.Fatal("lock not acquired after release")
		}
	})

	t.Run("expired holder does not delete the next holder's key", func(t *testing.T) {
		short := NewRedisRenewalLock(client, 50*time.Millisecond, zap.NewNop())
		unlockStale, err := short.Lock(ctx, "osaka-1")
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		next := NewRedisRenewalLock(client, 5*time.Second, zap.NewNop())
		unlockNext, err := next.Lock(ctx, "osaka-1")
		require.NoError(t, err)

		unlockStale()
		exists, err := client.Exists(ctx, renewalLockPrefix+"osaka-1").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
		unlockNext()
	})

	t.Run("cancelled wait returns context error", func(t *testing.T) {
		l := NewRedisRenewalLock(client, 5*time.Second, zap.NewNop())
		unlock, err := l.Lock(ctx, "kobe-1")
		require.NoError(t, err)
		defer unlock()

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = l.Lock(waitCtx, "kobe-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
