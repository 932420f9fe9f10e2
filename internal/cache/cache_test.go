package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestRedisCache_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, rc.Ping(ctx))
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "k:1", []byte("hello"), 10*time.Second))

		val, found, err := rc.Get(ctx, "k:1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), val)

		require.NoError(t, rc.Delete(ctx, "k:1"))
		_, found, err = rc.Get(ctx, "k:1")
		require.NoError(t, err)
		assert.False(t, found)

		assert.NoError(t, rc.Delete(ctx, "never:set"))
	})

	t.Run("take is single use", func(t *testing.T) {
		key := cache.OIDCStateKey("state-" + uuid.NewString()[:8])
		require.NoError(t, rc.Set(ctx, key, []byte(`{"redirect":"/"}`), time.Minute))

		val, found, err := rc.Take(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"redirect":"/"}`, string(val))

		_, found, err = rc.Take(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "k:ttl", []byte("temp"), time.Second))
		time.Sleep(1500 * time.Millisecond)

		_, found, err := rc.Get(ctx, "k:ttl")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("import status", func(t *testing.T) {
		jobID := uuid.New()
		_, found, err := rc.GetImportStatus(ctx, jobID)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, rc.SetImportStatus(ctx, jobID, "processing", 10*time.Second))
		status, found, err := rc.GetImportStatus(ctx, jobID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "processing", status)
	})

	t.Run("incr with expiry", func(t *testing.T) {
		key := cache.RateLimitKey("ip:" + uuid.NewString()[:8])
		for want := int64(1); want <= 3; want++ {
			got, err := rc.IncrWithExpiry(ctx, key, time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		time.Sleep(1500 * time.Millisecond)
		got, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})
}

func TestKeyBuilders(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t, "import:22222222-2222-2222-2222-222222222222", cache.ImportStatusKey(jobID))
	assert.Equal(t, "ratelimit:rb_abcd1234", cache.RateLimitKey("rb_abcd1234"))
	assert.Equal(t, "oidc:state:xyz", cache.OIDCStateKey("xyz"))
	assert.Equal(t, "image:proxy:deadbeef", cache.ImageProxyKey("deadbeef"))
}
