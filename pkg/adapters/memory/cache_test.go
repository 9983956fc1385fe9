package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "github.com/aretw0/xrlt/pkg/ports/tests"
)

func TestMemoryCache_Contract(t *testing.T) {
	contract.ResponseCacheContractTest(t, NewCache())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Second))
	_, ok, _ := c.Get(context.Background(), "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
