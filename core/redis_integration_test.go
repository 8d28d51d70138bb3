//go:build integration

package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	redisImage            = "redis:7-alpine"
	containerStartTimeout = 60 * time.Second
)

// TestRedisCache_RealServer runs the cache against a real Redis started in a container
func TestRedisCache_RealServer(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(containerStartTimeout),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache := NewRedisCache(fmt.Sprintf("%s:%s", host, port.Port()), "", 0, 5, zap.NewNop().Sugar())
	defer cache.Close()

	require.NoError(t, cache.Ping(ctx))

	key := GetRevokedTokenCacheKey("integration")
	require.NoError(t, cache.Set(ctx, key, true, time.Minute))

	var revoked bool
	found, err := cache.Get(ctx, key, &revoked)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, revoked)

	require.NoError(t, cache.Delete(ctx, key))
	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
