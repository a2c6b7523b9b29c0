package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/cache"
	"CoverFM/core/automation"
	"CoverFM/core/errs"
	"CoverFM/core/utils"
	"CoverFM/logger"
	"CoverFM/model"
)

const stageName = "convert"

// State 适配器状态
type State string

const (
	StateIdle           State = "IDLE"
	StateModelSelected  State = "MODEL_SELECTED"
	StateModelUnloaded  State = "MODEL_UNLOADED"
	StateModelLoaded    State = "MODEL_LOADED"
	StateInputSubmitted State = "INPUT_SUBMITTED"
	StateProcessing     State = "PROCESSING"
	StateOutputLocated  State = "OUTPUT_LOCATED"
	StateDownloaded     State = "DOWNLOADED"
	StateCleanedUp      State = "CLEANED_UP"
	StateFailed         State = "FAILED"
)

// Options 适配器参数
type Options struct {
	URL            string
	Model          string
	Voice          string
	WorkDir        string
	ScreenshotDir  string
	CleanupTimeout time.Duration
}

// Adapter 变声/TTS 适配器。每次调用独占一个会话，按固定顺序推进，
// 无论在哪一步失败都会卸载模型并关闭会话，且只执行一次。
type Adapter struct {
	opts       Options
	newService ServiceFactory
	locks      *automation.EndpointLocks

	// OnTransition 状态变化回调，可为 nil
	OnTransition func(State)
}

// NewAdapter locks 可为 nil
func NewAdapter(opts Options, factory ServiceFactory, locks *automation.EndpointLocks) *Adapter {
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 30 * time.Second
	}
	if opts.Voice == "" {
		opts.Voice = "女"
	}
	return &Adapter{opts: opts, newService: factory, locks: locks}
}

// Fingerprint 模型和音色
func (a *Adapter) Fingerprint() string {
	return a.opts.Model + "|" + a.opts.Voice
}

// modelTag 模型文件名去掉扩展名，用于区分不同模型的输出
func (a *Adapter) modelTag() string {
	name := filepath.Base(a.opts.Model)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "default"
	}
	return name
}

// ConvertedPath 变声结果路径：<WorkDir>/<人声文件名>_<模型>_converted.wav
func (a *Adapter) ConvertedPath(vocalsPath string) string {
	base := strings.TrimSuffix(filepath.Base(vocalsPath), filepath.Ext(vocalsPath))
	return filepath.Join(a.opts.WorkDir, base+"_"+a.modelTag()+"_converted.wav")
}

// ConvertAudio 对人声做音色转换。结果已存在时不启动浏览器。
func (a *Adapter) ConvertAudio(ctx context.Context, vocals *model.Artifact) (*model.Artifact, error) {
	if vocals == nil || !utils.FileExists(vocals.Path) {
		p := ""
		if vocals != nil {
			p = vocals.Path
		}
		return nil, errs.Precondition(stageName, "人声文件不存在: %s", p)
	}
	dest := a.ConvertedPath(vocals.Path)
	if utils.FileExists(dest) {
		logger.Info("变声结果已存在，跳过转换", logger.Stage(stageName), logger.String("path", dest))
		return model.NewArtifact(dest, model.StageConverted, vocals), nil
	}

	abs, err := filepath.Abs(vocals.Path)
	if err != nil {
		return nil, errs.Precondition(stageName, "无法解析人声路径: %v", err)
	}

	err = a.run(ctx, ModeConvert, func(ctx context.Context, svc RemoteConversionService) error {
		return svc.SubmitAudio(ctx, abs)
	}, MatchConverted, func(string) string { return dest })
	if err != nil {
		return nil, err
	}
	return model.NewArtifact(dest, model.StageConverted, vocals), nil
}

// SpeechPath TTS 结果目录下按文本哈希命名的文件
func (a *Adapter) SpeechPath(text string) string {
	return filepath.Join(a.opts.WorkDir, "tts", "tts_"+cache.Key(a.opts.Model, a.opts.Voice, text)[:16]+".wav")
}

// Synthesize 文字转语音
func (a *Adapter) Synthesize(ctx context.Context, text string) (*model.Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Precondition(stageName, "文本不能为空")
	}
	dest := a.SpeechPath(text)
	if utils.FileExists(dest) {
		logger.Info("语音已存在，跳过合成", logger.Stage(stageName), logger.String("path", dest))
		return model.NewArtifact(dest, model.StageSpeech, nil), nil
	}

	err := a.run(ctx, ModeSpeech, func(ctx context.Context, svc RemoteConversionService) error {
		return svc.SubmitText(ctx, text, a.opts.Voice)
	}, MatchSpeech, func(string) string { return dest })
	if err != nil {
		return nil, err
	}
	return model.NewArtifact(dest, model.StageSpeech, nil), nil
}

// invocation 单次调用的状态
type invocation struct {
	adapter *Adapter
	mode    Mode
	state   State
}

func (iv *invocation) to(s State) {
	logger.Debug("适配器状态变化",
		logger.Stage(stageName),
		logger.String("mode", iv.mode.String()),
		logger.String("from", string(iv.state)),
		logger.String("to", string(s)))
	iv.state = s
	if iv.adapter.OnTransition != nil {
		iv.adapter.OnTransition(s)
	}
}

func (a *Adapter) run(
	ctx context.Context,
	mode Mode,
	submit func(context.Context, RemoteConversionService) error,
	match OutputMatcher,
	destFor func(src string) string,
) (err error) {
	if a.locks != nil {
		release, lerr := a.locks.Acquire(ctx, a.opts.URL)
		if lerr != nil {
			return errs.E(errs.KindCanceled, stageName, "等待变声服务", lerr)
		}
		defer release()
	}

	iv := &invocation{adapter: a, mode: mode, state: StateIdle}
	start := time.Now()
	logger.Info("开始驱动变声页面",
		logger.Stage(stageName),
		logger.String("mode", mode.String()),
		logger.String("model", a.opts.Model))

	svc, err := a.newService(ctx)
	if err != nil {
		iv.to(StateFailed)
		return errs.RemoteTool(stageName, "打开变声页面", err)
	}

	defer func() {
		err = a.cleanup(ctx, iv, svc, err)
		if err == nil {
			logger.Info("变声页面处理完成",
				logger.Stage(stageName),
				logger.String("mode", mode.String()),
				logger.Duration("elapsed", time.Since(start)))
		}
	}()

	if err := svc.RefreshModels(ctx); err != nil {
		return a.stepErr("刷新模型列表", err)
	}
	if err := svc.SelectModel(ctx, a.opts.Model); err != nil {
		return a.stepErr("选择模型", err)
	}
	iv.to(StateModelSelected)

	if err := svc.UnloadModel(ctx); err != nil {
		return a.stepErr("卸载模型", err)
	}
	iv.to(StateModelUnloaded)

	if err := svc.LoadModel(ctx); err != nil {
		return a.stepErr("加载模型", err)
	}
	iv.to(StateModelLoaded)

	if err := submit(ctx, svc); err != nil {
		return a.stepErr("提交输入", err)
	}
	iv.to(StateInputSubmitted)

	if err := svc.Trigger(ctx, mode); err != nil {
		return a.stepErr("点击提交按钮", err)
	}
	iv.to(StateProcessing)

	src, err := svc.AwaitOutput(ctx, match)
	if err != nil {
		if errors.Is(err, ErrOutputNotFound) {
			return errs.Timeout(stageName, "等待输出音频超时")
		}
		return a.stepErr("等待输出音频", err)
	}
	iv.to(StateOutputLocated)

	dest := destFor(src)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errs.E(errs.KindPrecondition, stageName, "创建输出目录", err)
	}
	if err := svc.DownloadOutput(ctx, src, dest); err != nil {
		return a.stepErr("下载输出音频", err)
	}
	iv.to(StateDownloaded)

	logger.Info("输出音频已保存",
		logger.Stage(stageName),
		logger.String("src", src),
		logger.String("dest", dest))
	return nil
}

func (a *Adapter) stepErr(op string, err error) error {
	if errors.Is(err, ErrModelNotFound) {
		return errs.E(errs.KindPrecondition, stageName, op, err)
	}
	return errs.RemoteTool(stageName, op, err)
}

// cleanup 失败时先截图，然后卸载模型、关闭会话。
// 使用脱离请求取消的上下文，请求被取消后模型仍会被卸载；清理失败只记录日志。
func (a *Adapter) cleanup(ctx context.Context, iv *invocation, svc RemoteConversionService, primary error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.CleanupTimeout)
	defer cancel()

	if primary != nil {
		iv.to(StateFailed)
		if a.opts.ScreenshotDir != "" {
			shot := automation.ScreenshotPath(a.opts.ScreenshotDir, stageName+"_"+iv.mode.String())
			if err := svc.Screenshot(cctx, shot); err != nil {
				logger.Warn("保存调试截图失败", logger.Stage(stageName), logger.ErrorField(err))
			} else {
				primary = errs.WithScreenshot(primary, shot)
				logger.Error("变声页面处理失败",
					logger.Stage(stageName),
					logger.String("screenshot", shot),
					logger.ErrorField(primary))
			}
		}
	}

	if err := svc.UnloadModel(cctx); err != nil {
		logger.Warn("退出前卸载模型失败", logger.Stage(stageName), logger.ErrorField(err))
	}
	if err := svc.Close(); err != nil {
		logger.Warn("关闭变声页面失败", logger.Stage(stageName), logger.ErrorField(err))
	}
	iv.to(StateCleanedUp)
	return primary
}

// String 便于日志输出
func (a *Adapter) String() string {
	return fmt.Sprintf("Adapter(%s, model=%s)", a.opts.URL, a.opts.Model)
}
