package conversion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"CoverFM/core/utils"
	"CoverFM/logger"
)

// OutputMatcher 判断 audio 元素的 src 是否为真正的结果（页面上还有占位的示例音频）
type OutputMatcher func(src string) bool

// MatchConverted 变声结果
func MatchConverted(src string) bool {
	return src != "" && (strings.Contains(src, "_vocals_qingxu_") ||
		strings.HasSuffix(stripQuery(src), ".wav") ||
		strings.Contains(src, "_sovdiff_"))
}

// MatchSpeech TTS 结果
func MatchSpeech(src string) bool {
	return src != "" && (strings.HasSuffix(stripQuery(src), ".wav") || strings.Contains(src, "_tts_"))
}

func stripQuery(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		return src[:i]
	}
	return src
}

// FirstMatching 遍历当前所有 audio 地址，返回第一个满足条件的
func FirstMatching(srcs []string, match OutputMatcher) (string, bool) {
	for _, src := range srcs {
		if match(src) {
			return src, true
		}
	}
	return "", false
}

// LocalPath 解析 Gradio 形如 http://host/file=/tmp/gradio/x.wav 的地址，返回服务端本地路径
func LocalPath(src string) (string, bool) {
	i := strings.LastIndex(src, "file=")
	if i < 0 {
		return "", false
	}
	p, err := url.PathUnescape(stripQuery(src[i+len("file="):]))
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}

// Downloader 保存输出音频：本地可访问时直接复制，否则走 HTTP 分块下载
type Downloader struct {
	client *http.Client
}

func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

// Fetch 原子写入 dest
func (d *Downloader) Fetch(ctx context.Context, src, dest string) error {
	if local, ok := LocalPath(src); ok && utils.FileExists(local) {
		logger.Debug("输出文件在本地，直接复制", logger.String("src", local), logger.String("dest", dest))
		if err := utils.CopyFileAtomic(local, dest); err != nil {
			return fmt.Errorf("复制输出文件失败: %w", err)
		}
		return nil
	}
	if err := utils.DownloadFile(ctx, d.client, src, dest); err != nil {
		return fmt.Errorf("下载输出音频失败: %w", err)
	}
	return nil
}
