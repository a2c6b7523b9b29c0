// Package separation 驱动 MSST WebUI 把原始音频分离成人声和伴奏。
package separation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/core/automation"
	"CoverFM/core/errs"
	"CoverFM/core/utils"
	"CoverFM/logger"
	"CoverFM/model"
)

const stageName = "separate"

// DefaultKeywords 状态文本中表示分离完成的关键字
var DefaultKeywords = []string{"完成", "success", "分离完成"}

// Page 分离页面上的操作
type Page interface {
	Upload(ctx context.Context, path string) error
	Start(ctx context.Context) error
	StatusText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// PageFactory 为一次分离打开新的页面会话
type PageFactory func(ctx context.Context) (Page, error)

// Options 分离阶段参数
type Options struct {
	URL           string
	ResultDir     string
	ScreenshotDir string
	Interval      time.Duration
	Timeout       time.Duration
	UploadDelay   time.Duration
	Keywords      []string
}

// Separator 分离阶段
type Separator struct {
	opts    Options
	newPage PageFactory
	locks   *automation.EndpointLocks
}

// NewSeparator locks 可为 nil，此时不做端点互斥
func NewSeparator(opts Options, newPage PageFactory, locks *automation.EndpointLocks) *Separator {
	if opts.Interval <= 0 {
		opts.Interval = 4 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultKeywords
	}
	return &Separator{opts: opts, newPage: newPage, locks: locks}
}

// ResultDir 分离结果目录
func (s *Separator) ResultDir() string {
	return s.opts.ResultDir
}

// ExpectedPaths 按输入文件名推算的输出路径：<base>_other.wav / <base>_vocals.wav
func (s *Separator) ExpectedPaths(rawPath string) (instrumental, vocals string) {
	base := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	return filepath.Join(s.opts.ResultDir, base+"_other.wav"),
		filepath.Join(s.opts.ResultDir, base+"_vocals.wav")
}

// IsComplete 状态文本包含完成关键字，或者两个输出文件都已存在，任一成立即视为完成
func (s *Separator) IsComplete(page Page, instrumental, vocals string) automation.Condition {
	statusDone := func(ctx context.Context) (bool, error) {
		msg, err := page.StatusText(ctx)
		if err != nil {
			return false, err
		}
		return ContainsKeyword(msg, s.opts.Keywords), nil
	}
	filesDone := func(ctx context.Context) (bool, error) {
		return utils.FileExists(instrumental) && utils.FileExists(vocals), nil
	}
	return automation.AnyOf(statusDone, filesDone)
}

// negations 紧跟在关键字前表示否定，如"未完成""not success"
var negations = []string{"未", "没有", "没", "not ", "un"}

// ContainsKeyword 英文关键字不区分大小写。前面带否定词的出现不算。
func ContainsKeyword(msg string, keywords []string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(lower[from:], k)
			if i < 0 {
				break
			}
			i += from
			if !negated(lower[:i]) {
				return true
			}
			from = i + len(k)
		}
	}
	return false
}

func negated(prefix string) bool {
	for _, n := range negations {
		if strings.HasSuffix(prefix, n) {
			return true
		}
	}
	return false
}

// Separate 分离原始音频。预期输出已存在时直接返回，不启动浏览器。
func (s *Separator) Separate(ctx context.Context, raw *model.Artifact) (*model.StemPair, error) {
	if raw == nil || !utils.FileExists(raw.Path) {
		path := ""
		if raw != nil {
			path = raw.Path
		}
		return nil, errs.Precondition(stageName, "音频文件不存在: %s", path)
	}
	if s.opts.ResultDir == "" {
		return nil, errs.Precondition(stageName, "未配置分离结果目录")
	}

	instrumental, vocals := s.ExpectedPaths(raw.Path)
	if utils.FileExists(instrumental) && utils.FileExists(vocals) {
		logger.Info("分离结果已存在，跳过分离", logger.Stage(stageName), logger.String("vocals", vocals))
		return stems(raw, instrumental, vocals), nil
	}

	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, s.opts.URL)
		if err != nil {
			return nil, errs.E(errs.KindCanceled, stageName, "等待分离服务", err)
		}
		defer release()
	}

	start := time.Now()
	logger.Info("开始分离", logger.Stage(stageName), logger.String("input", raw.Path), logger.String("url", s.opts.URL))

	page, err := s.newPage(ctx)
	if err != nil {
		return nil, errs.RemoteTool(stageName, "打开分离页面", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("关闭分离页面失败", logger.Stage(stageName), logger.ErrorField(cerr))
		}
	}()

	if err := s.drive(ctx, page, raw.Path, instrumental, vocals); err != nil {
		return nil, s.fail(page, err)
	}

	logger.Info("分离完成",
		logger.Stage(stageName),
		logger.String("vocals", vocals),
		logger.String("instrumental", instrumental),
		logger.Duration("elapsed", time.Since(start)))
	return stems(raw, instrumental, vocals), nil
}

func (s *Separator) drive(ctx context.Context, page Page, input, instrumental, vocals string) error {
	abs, err := filepath.Abs(input)
	if err != nil {
		return errs.Precondition(stageName, "无法解析输入路径: %v", err)
	}
	if err := page.Upload(ctx, abs); err != nil {
		return errs.RemoteTool(stageName, "上传音频", err)
	}
	if err := automation.Sleep(ctx, s.opts.UploadDelay); err != nil {
		return errs.E(errs.KindCanceled, stageName, "等待上传", err)
	}
	if err := page.Start(ctx); err != nil {
		return errs.RemoteTool(stageName, "点击分离按钮", err)
	}

	pollOpts := automation.PollOptions{Interval: s.opts.Interval, Timeout: s.opts.Timeout}
	if wake, stop, err := automation.WatchDir(ctx, s.opts.ResultDir, func(name string) bool {
		return name == filepath.Base(instrumental) || name == filepath.Base(vocals)
	}); err == nil {
		defer stop()
		pollOpts.Wake = wake
	} else {
		logger.Debug("无法监听结果目录，仅按间隔轮询", logger.Stage(stageName), logger.ErrorField(err))
	}

	err = automation.Poll(ctx, pollOpts, s.IsComplete(page, instrumental, vocals))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, automation.ErrPollExhausted):
		return errs.Timeout(stageName, "等待分离完成超时 (%s)", s.opts.Timeout)
	default:
		return errs.E(errs.KindCanceled, stageName, "等待分离完成", err)
	}
}

// fail 保存截图并附加到错误上。页面可能已随请求取消而不可用，截图使用独立的短超时。
func (s *Separator) fail(page Page, err error) error {
	if s.opts.ScreenshotDir == "" {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shot := automation.ScreenshotPath(s.opts.ScreenshotDir, stageName)
	if serr := page.Screenshot(ctx, shot); serr != nil {
		logger.Warn("保存调试截图失败", logger.Stage(stageName), logger.ErrorField(serr))
		return err
	}
	logger.Error("分离失败",
		logger.Stage(stageName),
		logger.String("screenshot", shot),
		logger.ErrorField(err))
	return errs.WithScreenshot(err, shot)
}

func stems(raw *model.Artifact, instrumental, vocals string) *model.StemPair {
	return &model.StemPair{
		Instrumental: model.NewArtifact(instrumental, model.StageInstrumental, raw),
		Vocals:       model.NewArtifact(vocals, model.StageVocals, raw),
	}
}

// String 便于日志输出
func (s *Separator) String() string {
	return fmt.Sprintf("Separator(%s -> %s)", s.opts.URL, s.opts.ResultDir)
}
