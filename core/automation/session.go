// Package automation 封装驱动外部 WebUI 所需的浏览器会话、有界轮询和端点互斥。
package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CoverFM/core/utils"
	"CoverFM/logger"

	"github.com/chromedp/chromedp"
)

// SessionOptions 浏览器启动参数
type SessionOptions struct {
	ExecPath       string
	Headless       bool
	ElementTimeout time.Duration // 单次页面操作的等待上限
	WindowWidth    int
	WindowHeight   int
}

// Session 一次阶段调用独占的浏览器会话。
// 浏览器上下文与请求上下文分离：请求取消后仍可执行清理动作，必须显式 Close。
type Session struct {
	url            string
	ctx            context.Context
	cancelTab      context.CancelFunc
	cancelAlloc    context.CancelFunc
	elementTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewSession 启动浏览器并打开 url
func NewSession(ctx context.Context, url string, opts SessionOptions) (*Session, error) {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 20 * time.Second
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1920, 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	base := context.WithoutCancel(ctx)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(base, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		url:            url,
		ctx:            tabCtx,
		cancelTab:      cancelTab,
		cancelAlloc:    cancelAlloc,
		elementTimeout: opts.ElementTimeout,
	}

	logger.Info("启动浏览器会话", logger.String("url", url), logger.Bool("headless", opts.Headless))
	if err := s.Run(ctx, chromedp.Navigate(url)); err != nil {
		s.Close()
		return nil, fmt.Errorf("打开页面失败 %s: %w", url, err)
	}
	return s, nil
}

// URL 会话打开的页面地址
func (s *Session) URL() string {
	return s.url
}

// Run 在浏览器上下文中执行动作，受 ctx 取消和单次操作超时双重约束
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	return s.RunWithTimeout(ctx, s.elementTimeout, actions...)
}

// RunWithTimeout 同 Run，但使用指定的超时
func (s *Session) RunWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Evaluate 执行 JS 表达式并解码结果
func (s *Session) Evaluate(ctx context.Context, expr string, res interface{}) error {
	return s.Run(ctx, chromedp.Evaluate(expr, res))
}

// Screenshot 截取整页写入 path，返回实际路径
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建截图目录失败: %w", err)
	}
	return utils.WriteFileAtomic(path, buf)
}

// Close 关闭标签页和浏览器进程，可重复调用
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		logger.Debug("浏览器会话已关闭", logger.String("url", s.url))
	})
	return s.closeErr
}

// ScreenshotPath 截图文件名：<dir>/<stage>_<时间戳>.png
func ScreenshotPath(dir, stage string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", stage, time.Now().Format("20060102_150405.000")))
}

// Sleep 可被取消的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
