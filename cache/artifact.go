package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/core/utils"
	"CoverFM/logger"
	"CoverFM/model"
)

// ArtifactCache 把逻辑 key 映射到磁盘上的产物文件。
// 只做文件系统检查，不会触发网络或浏览器 I/O。
type ArtifactCache struct {
	dir string
	now func() time.Time
}

type artifactRecord struct {
	Artifact  *model.Artifact `json:"artifact"`
	CreatedAt time.Time       `json:"createdAt"`
	TTL       time.Duration   `json:"ttl"` // 0 表示不过期
}

// NewArtifactCache 在 dir/index 下保存索引记录
func NewArtifactCache(dir string) (*ArtifactCache, error) {
	indexDir := filepath.Join(dir, "index")
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存索引目录失败: %w", err)
	}
	return &ArtifactCache{dir: indexDir, now: time.Now}, nil
}

// Key 对参数元组做 sha256，顺序敏感
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SourceKey 由阶段名和源文件身份（路径、大小、修改时间）派生 key，
// 源文件被替换后自然失效。
func SourceKey(stage model.Stage, sourcePath string, extra ...string) string {
	parts := []string{string(stage), sourcePath}
	if info, err := os.Stat(sourcePath); err == nil {
		parts = append(parts, fmt.Sprintf("%d", info.Size()), fmt.Sprintf("%d", info.ModTime().UnixNano()))
	}
	return Key(append(parts, extra...)...)
}

func (c *ArtifactCache) recordPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Lookup 命中时返回产物；记录损坏、过期或文件已不存在都视为未命中
func (c *ArtifactCache) Lookup(key string) (*model.Artifact, bool) {
	data, err := os.ReadFile(c.recordPath(key))
	if err != nil {
		return nil, false
	}

	var rec artifactRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Artifact == nil || strings.TrimSpace(rec.Artifact.Path) == "" {
		logger.Warn("缓存记录损坏，按未命中处理", logger.String("key", key), logger.ErrorField(err))
		return nil, false
	}
	if rec.TTL > 0 && c.now().Sub(rec.CreatedAt) > rec.TTL {
		logger.Debug("缓存记录已过期", logger.String("key", key))
		return nil, false
	}
	if !utils.FileExists(rec.Artifact.Path) {
		logger.Debug("缓存记录指向的文件不存在", logger.String("key", key), logger.String("path", rec.Artifact.Path))
		return nil, false
	}
	return rec.Artifact, true
}

// Store 保存永久记录
func (c *ArtifactCache) Store(key string, artifact *model.Artifact) error {
	return c.StoreWithTTL(key, artifact, 0)
}

// StoreWithTTL 保存记录，ttl<=0 表示不过期
func (c *ArtifactCache) StoreWithTTL(key string, artifact *model.Artifact, ttl time.Duration) error {
	if artifact == nil {
		return fmt.Errorf("artifact 不能为空")
	}
	rec := artifactRecord{Artifact: artifact, CreatedAt: c.now(), TTL: ttl}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化缓存记录失败: %w", err)
	}
	if err := utils.WriteFileAtomic(c.recordPath(key), data); err != nil {
		return fmt.Errorf("写入缓存记录失败: %w", err)
	}
	return nil
}

// Purge 删除记录（不删除产物文件）
func (c *ArtifactCache) Purge(key string) error {
	err := os.Remove(c.recordPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
