package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "covers/晴天_changed.wav", ObjectName("/data/work/晴天_changed.wav"))
	assert.Equal(t, "covers/tts_abcd.wav", ObjectName("tts/tts_abcd.wav"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/wav", ContentType("a.WAV"))
	assert.Equal(t, "audio/mpeg", ContentType("a.mp3"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KB", FormatSize(1024))
	assert.Equal(t, "1.5 MB", FormatSize(1536*1024))
}

func TestUsageAndStats(t *testing.T) {
	objects := []ObjectInfo{
		{Key: "covers/a.wav", Size: 100},
		{Key: "covers/b.flac", Size: 50},
		{Key: "shots/x.png", Size: 7},
		{Key: "notes", Size: 1},
	}
	assert.Equal(t, map[string]int64{"audio": 150, "image": 7, "other": 1}, Usage(objects))

	stats := &BucketStats{}
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	accumulate(stats, 10, newer)
	accumulate(stats, 5, older)
	assert.Equal(t, int64(2), stats.TotalObjects)
	assert.Equal(t, int64(15), stats.TotalSize)
	assert.Equal(t, newer, stats.LastModified)
}
