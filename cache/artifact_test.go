package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"CoverFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministicAndOrderSensitive(t *testing.T) {
	assert.Equal(t, Key("晴天", "1", "9"), Key("晴天", "1", "9"))
	assert.NotEqual(t, Key("晴天", "1", "9"), Key("晴天", "9", "1"))
	// 分隔符避免 "ab"+"c" 和 "a"+"bc" 冲突
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestArtifactCacheStoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := NewArtifactCache(dir)
	require.NoError(t, err)

	file := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, ok := c.Lookup("k")
	assert.False(t, ok)

	require.NoError(t, c.Store("k", model.NewArtifact(file, model.StageRaw, nil)))
	got, ok := c.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, file, got.Path)
	assert.Equal(t, model.StageRaw, got.Stage)

	// 产物被手动删除后视为未命中
	require.NoError(t, os.Remove(file))
	_, ok = c.Lookup("k")
	assert.False(t, ok)
}

func TestArtifactCacheCorruptedRecordIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := NewArtifactCache(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index", "bad.json"), []byte("{not json"), 0644))
	_, ok := c.Lookup("bad")
	assert.False(t, ok)
}

func TestArtifactCacheTTL(t *testing.T) {
	dir := t.TempDir()
	c, err := NewArtifactCache(dir)
	require.NoError(t, err)

	file := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.StoreWithTTL("k", model.NewArtifact(file, model.StageSpeech, nil), time.Minute))

	_, ok := c.Lookup("k")
	assert.True(t, ok)

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = c.Lookup("k")
	assert.False(t, ok)
}

func TestSourceKeyChangesWithFileContent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "v.wav")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0644))
	k1 := SourceKey(model.StageConverted, file, "jo.pth")

	require.NoError(t, os.WriteFile(file, []byte("two-two"), 0644))
	k2 := SourceKey(model.StageConverted, file, "jo.pth")

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k2, SourceKey(model.StageConverted, file, "other.pth"))
}
