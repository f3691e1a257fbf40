package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"retailpos/backend/internal/domain"
)

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c IdempotencyCache = NoopIdempotencyCache{}
	require.NoError(t, c.Set(context.Background(), domain.IdempotencyRecord{Scope: "checkout", Key: "k", Response: []byte(`{}`)}, time.Minute))
	rec, ok, err := c.Get(context.Background(), "checkout", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestCacheKeyIncludesScope(t *testing.T) {
	assert.Equal(t, "pos:idem:checkout:abc", cacheKey("checkout", "abc"))
	assert.NotEqual(t, cacheKey("checkout", "abc"), cacheKey("payment_transition", "abc"))
}

func TestRedisCacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c := NewRedisIdempotencyCache(fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "checkout", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	pending := domain.IdempotencyRecord{Scope: "checkout", Key: "pending", Fingerprint: "f"}
	require.NoError(t, c.Set(ctx, pending, time.Minute))
	_, ok, err = c.Get(ctx, "checkout", "pending")
	require.NoError(t, err)
	assert.False(t, ok, "records without a response must not be cached")

	done := domain.IdempotencyRecord{Scope: "checkout", Key: "done", Fingerprint: "f1", Response: []byte(`{"sale_id":"s1"}`)}
	require.NoError(t, c.Set(ctx, done, time.Minute))
	other := done
	other.Response = []byte(`{"sale_id":"s2"}`)
	require.NoError(t, c.Set(ctx, other, time.Minute))

	got, ok, err := c.Get(ctx, "checkout", "done")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "f1", got.Fingerprint)
	assert.JSONEq(t, `{"sale_id":"s1"}`, string(got.Response))
}
