package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/pkg/adapters/redis"
	contract "github.com/aretw0/xrlt/pkg/ports/tests"
)

func TestRedisCache_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	contract.ResponseCacheContractTest(t, redis.NewFromClient(client))
}

func TestRedisCache_TTL_Expiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache := redis.New(mr.Addr(), "", 0, redis.WithPrefix("test:"))
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "http://api.test/a", []byte(`{"a":1}`), time.Second))
	assert.True(t, mr.Exists("test:http://api.test/a"))
	assert.NoError(t, cache.Ping(ctx))

	mr.FastForward(2 * time.Second)

	_, ok, err := cache.Get(ctx, "http://api.test/a")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ConnectionError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.New(mr.Addr(), "", 0)
	mr.Close()

	_, _, err = cache.Get(context.Background(), "k")
	assert.Error(t, err)
}
