package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/config"
	"CoverFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CoverPrefix 成品在存储桶中的目录
const CoverPrefix = "covers/"

// Publisher 把成品上传到 MinIO 并生成临时访问链接
type Publisher struct {
	client *minio.Client
	bucket string
	region string
	urlTTL time.Duration
}

// NewPublisher 创建 MinIO 客户端，并确认存储桶存在
func NewPublisher(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	logger.Info("正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.String("accessKey", mask(cfg.MinioAccessKey)))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	p := &Publisher{
		client: client,
		bucket: cfg.MinioBucket,
		region: cfg.MinioRegion,
		urlTTL: cfg.MinioURLTTL,
	}
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("MinIO 客户端初始化成功", logger.String("bucket", p.bucket))
	return p, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", p.bucket))
	return nil
}

// ObjectName 本地文件对应的对象名
func ObjectName(localPath string) string {
	return path.Join(CoverPrefix, filepath.Base(localPath))
}

// ContentType 按扩展名推断
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// Publish 上传文件，返回预签名下载地址
func (p *Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	object := ObjectName(localPath)
	info, err := p.client.FPutObject(ctx, p.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("上传 %s 失败: %w", object, err)
	}

	u, err := p.client.PresignedGetObject(ctx, p.bucket, object, p.urlTTL, nil)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	logger.Info("成品已发布",
		logger.String("object", object),
		logger.Int64("size", info.Size),
		logger.Duration("ttl", p.urlTTL))
	return u.String(), nil
}

// Remove 删除已发布的成品
func (p *Publisher) Remove(ctx context.Context, object string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除 %s 失败: %w", object, err)
	}
	return nil
}

// Bucket 存储桶名
func (p *Publisher) Bucket() string {
	return p.bucket
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "..."
}
