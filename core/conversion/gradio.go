package conversion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"CoverFM/core/automation"
	"CoverFM/logger"

	"github.com/chromedp/chromedp"
)

// Gradio 变声页面元素
const (
	gradioRefreshButton = `#component-20`
	gradioModelDropdown = `#component-6 > label > div > div.wrap-inner > span`
	gradioModelOptions  = `ul.options > li.item`
	gradioLoadButton    = `#component-31`
	gradioUnloadButton  = `#component-32`
	gradioAudioInput    = `#component-40 input[type='file']`
	gradioConvertSubmit = `#component-83`
	gradioTTSTab        = `//button[contains(text(), '文字转语音')]`
	gradioVoiceRadio    = `#component-49 input[type='radio'][value=%s]`
	gradioTextbox       = `#component-47 textarea[data-testid='textbox']`
	gradioTTSSubmit     = `#component-85`
)

const (
	listOptionsJS = `Array.from(document.querySelectorAll(%s)).map(li => (li.getAttribute('aria-label') || li.innerText || '').trim())`
	listAudioJS   = `Array.from(document.querySelectorAll('audio')).map(a => a.getAttribute('src') ? a.src : '')`
)

// GradioOptions 页面操作的节奏
type GradioOptions struct {
	Session        automation.SessionOptions
	StepDelay      time.Duration // 普通点击后的等待
	UnloadDelay    time.Duration
	LoadDelay      time.Duration // 加载模型后的等待
	SettleDelay    time.Duration // 提交后开始查找输出前的等待
	PollAttempts   int
	PollInterval   time.Duration
	DownloadClient *http.Client
}

func (o *GradioOptions) defaults() {
	if o.StepDelay <= 0 {
		o.StepDelay = time.Second
	}
	if o.UnloadDelay <= 0 {
		o.UnloadDelay = 2 * time.Second
	}
	if o.LoadDelay <= 0 {
		o.LoadDelay = 5 * time.Second
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = 60
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// gradioService 基于 chromedp 的 RemoteConversionService
type gradioService struct {
	session    *automation.Session
	opts       GradioOptions
	downloader *Downloader
}

// NewGradioFactory 每次调用启动一个新的浏览器会话
func NewGradioFactory(url string, opts GradioOptions) ServiceFactory {
	opts.defaults()
	return func(ctx context.Context) (RemoteConversionService, error) {
		s, err := automation.NewSession(ctx, url, opts.Session)
		if err != nil {
			return nil, err
		}
		return &gradioService{
			session:    s,
			opts:       opts,
			downloader: NewDownloader(opts.DownloadClient),
		}, nil
	}
}

func (g *gradioService) click(ctx context.Context, sel string, delay time.Duration) error {
	if err := g.session.Run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("点击 %s 失败: %w", sel, err)
	}
	return automation.Sleep(ctx, delay)
}

func (g *gradioService) RefreshModels(ctx context.Context) error {
	return g.click(ctx, gradioRefreshButton, g.opts.StepDelay)
}

func (g *gradioService) SelectModel(ctx context.Context, name string) error {
	if err := g.click(ctx, gradioModelDropdown, g.opts.StepDelay); err != nil {
		return err
	}

	var labels []string
	if err := g.session.Evaluate(ctx, fmt.Sprintf(listOptionsJS, strconv.Quote(gradioModelOptions)), &labels); err != nil {
		return fmt.Errorf("读取模型列表失败: %w", err)
	}
	idx := -1
	for i, label := range labels {
		if label == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s (可选: %s)", ErrModelNotFound, name, strings.Join(labels, ", "))
	}

	sel := fmt.Sprintf("%s:nth-child(%d)", gradioModelOptions, idx+1)
	return g.click(ctx, sel, g.opts.StepDelay)
}

func (g *gradioService) UnloadModel(ctx context.Context) error {
	return g.click(ctx, gradioUnloadButton, g.opts.UnloadDelay)
}

func (g *gradioService) LoadModel(ctx context.Context) error {
	return g.click(ctx, gradioLoadButton, g.opts.LoadDelay)
}

func (g *gradioService) SubmitAudio(ctx context.Context, path string) error {
	if err := g.session.Run(ctx, chromedp.SetUploadFiles(gradioAudioInput, []string{path}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("上传音频失败: %w", err)
	}
	return automation.Sleep(ctx, g.opts.StepDelay)
}

func (g *gradioService) SubmitText(ctx context.Context, text, voice string) error {
	// 页签已选中时不再点击
	var class string
	var ok bool
	if err := g.session.Run(ctx, chromedp.AttributeValue(gradioTTSTab, "class", &class, &ok, chromedp.BySearch)); err != nil {
		return fmt.Errorf("查找文字转语音页签失败: %w", err)
	}
	if !strings.Contains(class, "selected") {
		if err := g.session.Run(ctx, chromedp.Click(gradioTTSTab, chromedp.BySearch)); err != nil {
			return fmt.Errorf("切换文字转语音页签失败: %w", err)
		}
		if err := automation.Sleep(ctx, g.opts.StepDelay); err != nil {
			return err
		}
	}

	// 音色已选中时不再点击
	radio := fmt.Sprintf(gradioVoiceRadio, strconv.Quote(voice))
	var checked bool
	if err := g.session.Evaluate(ctx, fmt.Sprintf(`(() => { const r = document.querySelector(%s); return !!(r && r.checked); })()`, strconv.Quote(radio)), &checked); err != nil {
		return fmt.Errorf("读取音色选项失败: %w", err)
	}
	if !checked {
		if err := g.click(ctx, radio, g.opts.StepDelay/2); err != nil {
			return err
		}
	}

	if err := g.session.Run(ctx,
		chromedp.WaitReady(gradioTextbox, chromedp.ByQuery),
		chromedp.Clear(gradioTextbox, chromedp.ByQuery),
		chromedp.SendKeys(gradioTextbox, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("输入文本失败: %w", err)
	}
	return automation.Sleep(ctx, g.opts.StepDelay)
}

func (g *gradioService) Trigger(ctx context.Context, mode Mode) error {
	sel := gradioConvertSubmit
	if mode == ModeSpeech {
		sel = gradioTTSSubmit
	}
	return g.click(ctx, sel, g.opts.SettleDelay)
}

// AwaitOutput 每轮枚举页面上全部 audio 元素
func (g *gradioService) AwaitOutput(ctx context.Context, match OutputMatcher) (string, error) {
	var found string
	err := automation.Poll(ctx, automation.PollOptions{
		Interval:    g.opts.PollInterval,
		MaxAttempts: g.opts.PollAttempts,
	}, func(ctx context.Context) (bool, error) {
		var srcs []string
		if err := g.session.Evaluate(ctx, listAudioJS, &srcs); err != nil {
			logger.Debug("读取 audio 元素失败", logger.ErrorField(err))
			return false, nil
		}
		src, ok := FirstMatching(srcs, match)
		if ok {
			found = src
		}
		return ok, nil
	})
	if errors.Is(err, automation.ErrPollExhausted) {
		return "", ErrOutputNotFound
	}
	if err != nil {
		return "", err
	}
	return found, nil
}

func (g *gradioService) DownloadOutput(ctx context.Context, src, dest string) error {
	return g.downloader.Fetch(ctx, src, dest)
}

func (g *gradioService) Screenshot(ctx context.Context, path string) error {
	return g.session.Screenshot(ctx, path)
}

func (g *gradioService) Close() error {
	return g.session.Close()
}
