package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactum/agreement-engine/cache"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := cache.NewMemory()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", "v", 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := cache.NewMemory()

	require.NoError(t, c.Set("k", "v", 10*time.Millisecond))
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	c := cache.NewMemory()

	require.NoError(t, c.Set("k", "v", 0))
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok)
}
