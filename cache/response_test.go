package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestKeyIsMD5(t *testing.T) {
	k := RequestKey("晴天", "9", "1")
	assert.Len(t, k, 32)
	assert.Equal(t, k, RequestKey("晴天", "9", "1"))
	assert.NotEqual(t, k, RequestKey("晴天", "9", "2"))
}

func TestFileResponseCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileResponseCache(dir, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"code":200}`), 0))
	data, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `{"code":200}`, string(data))

	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "k.json"), old, old))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "expired entries must never be served")
}

func TestSelectorCounterRotatesAndExpires(t *testing.T) {
	c := NewSelectorCounter(3, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	assert.Equal(t, 1, c.Next("g1/晴天"))
	assert.Equal(t, 2, c.Next("g1/晴天"))
	assert.Equal(t, 3, c.Next("g1/晴天"))
	assert.Equal(t, 1, c.Next("g1/晴天"))
	assert.Equal(t, 1, c.Next("g2/晴天"))
	assert.Equal(t, 2, c.Len())

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, c.Next("g1/晴天"))
}
