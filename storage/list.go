package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// List 列出前缀下的对象并汇总
func (p *Publisher) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo

	for object := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
		accumulate(stats, object.Size, object.LastModified)
	}
	return objects, stats, nil
}

func accumulate(stats *BucketStats, size int64, modified time.Time) {
	stats.TotalObjects++
	stats.TotalSize += size
	if modified.After(stats.LastModified) {
		stats.LastModified = modified
	}
}

// Usage 按文件类型统计占用
func Usage(objects []ObjectInfo) map[string]int64 {
	usage := make(map[string]int64)
	for _, obj := range objects {
		usage[inferCategory(obj.Key)] += obj.Size
	}
	return usage
}

func inferCategory(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".wav", ".flac", ".m4a":
		return "audio"
	case ".png", ".jpg", ".jpeg":
		return "image"
	default:
		return "other"
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
