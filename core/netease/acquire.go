package netease

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/cache"
	"CoverFM/core/errs"
	"CoverFM/core/utils"
	"CoverFM/logger"
	"CoverFM/model"

	"github.com/cenkalti/backoff/v4"
)

var audioExts = map[string]bool{".flac": true, ".mp3": true, ".wav": true, ".m4a": true, ".ogg": true}

// Acquirer 获取阶段：搜索并下载原始音频到缓存目录
type Acquirer struct {
	client         *Client
	dir            string
	counter        *cache.SelectorCounter
	retryGap       time.Duration
	defaultQuality int
}

// NewAcquirer dir 为下载目录；counter 可为 nil，此时自动序号固定从 1 开始
func NewAcquirer(client *Client, dir string, counter *cache.SelectorCounter, retryGap time.Duration, defaultQuality int) *Acquirer {
	if defaultQuality <= 0 {
		defaultQuality = 9
	}
	return &Acquirer{
		client:         client,
		dir:            dir,
		counter:        counter,
		retryGap:       retryGap,
		defaultQuality: defaultQuality,
	}
}

// selectorPlan 候选序号的尝试顺序。
// 指定序号时只试该序号，失败由调用方决定是否换序号；自动模式下取轮换序号 n，依次试 n、n/2、1。
func (a *Acquirer) selectorPlan(req model.TrackRequest) []int {
	if req.SelectorIndex > 0 {
		return []int{req.SelectorIndex}
	}
	n := 1
	if a.counter != nil {
		n = a.counter.Next(req.Query)
	}
	half := n / 2
	if half < 1 {
		half = 1
	}
	plan := []int{n, half, 1}

	seen := make(map[int]bool, len(plan))
	out := plan[:0]
	for _, c := range plan {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Resolve 按序号计划依次查询，返回第一个可用结果和实际使用的序号
func (a *Acquirer) Resolve(ctx context.Context, req model.TrackRequest) (*model.SongInfo, int, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, errs.Precondition(stageName, "%v", err)
	}
	quality := req.Quality
	if quality <= 0 {
		quality = a.defaultQuality
	}

	plan := a.selectorPlan(req)
	var (
		info *model.SongInfo
		used int
		i    int
	)
	op := func() error {
		choose := plan[i]
		i++
		got, err := a.client.Search(ctx, req.Query, quality, choose)
		if err == nil {
			info, used = got, choose
			return nil
		}
		if errs.KindOf(err) == errs.KindCanceled || i >= len(plan) {
			return backoff.Permanent(err)
		}
		logger.Warn("搜索失败，换序号重试",
			logger.Stage(stageName),
			logger.String("query", req.Query),
			logger.Int("choose", choose),
			logger.Int("next", plan[i]),
			logger.ErrorField(err))
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryGap), uint64(len(plan)-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return nil, plan[len(plan)-1], errs.E(errs.KindNotFound, stageName, "搜索", err)
	}
	return info, used, nil
}

// Acquire 返回原始音频产物。同名文件已存在时直接复用，不重复下载。
func (a *Acquirer) Acquire(ctx context.Context, req model.TrackRequest) (*model.Artifact, error) {
	info, used, err := a.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	name := SanitizeFilename(info.Song)
	if info.Song == "" {
		name = SanitizeFilename(req.Query)
	}
	dest := filepath.Join(a.dir, name+audioExtFromURL(info.URL))

	if utils.FileExists(dest) {
		logger.Info("音频已存在，跳过下载", logger.Stage(stageName), logger.String("path", dest))
		return model.NewArtifact(dest, model.StageRaw, nil), nil
	}

	logger.Info("开始下载音频",
		logger.Stage(stageName),
		logger.String("song", info.Song),
		logger.Int("choose", used),
		logger.String("path", dest))

	if err := utils.DownloadFile(ctx, a.client.HTTPClient(), info.URL, dest); err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "下载音频", err)
	}
	return model.NewArtifact(dest, model.StageRaw, nil), nil
}

// audioExtFromURL 从链接路径取扩展名，无法识别时按无损 flac 处理
func audioExtFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".flac"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if audioExts[ext] {
		return ext
	}
	return ".flac"
}

// String 便于日志输出
func (a *Acquirer) String() string {
	return fmt.Sprintf("Acquirer(%s)", a.dir)
}
