// Package pipeline 串联获取、分离、变声和混音各阶段，并管理异步任务。
package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"CoverFM/cache"
	"CoverFM/core/errs"
	"CoverFM/logger"
	"CoverFM/model"
)

// Acquirer 获取原始音频
type Acquirer interface {
	Acquire(ctx context.Context, req model.TrackRequest) (*model.Artifact, error)
}

// Separator 分离人声和伴奏
type Separator interface {
	Separate(ctx context.Context, raw *model.Artifact) (*model.StemPair, error)
	ResultDir() string
}

// Converter 变声和文字转语音
type Converter interface {
	ConvertAudio(ctx context.Context, vocals *model.Artifact) (*model.Artifact, error)
	Synthesize(ctx context.Context, text string) (*model.Artifact, error)
	// Fingerprint 影响输出的参数（模型、音色），换模型后缓存随之失效
	Fingerprint() string
}

// Mixer 混音
type Mixer interface {
	Mixdown(ctx context.Context, vocals, instrumental *model.Artifact) (*model.Artifact, error)
}

// Orchestrator 单次请求内各阶段顺序执行，任何阶段失败立即结束，不做跨阶段重试
type Orchestrator struct {
	acquirer  Acquirer
	separator Separator
	converter Converter
	mixer     Mixer
	cache     *cache.ArtifactCache
	timeout   time.Duration
}

// NewOrchestrator artifacts 可为 nil，此时只依赖各阶段自身的文件存在性检查
func NewOrchestrator(acq Acquirer, sep Separator, conv Converter, mix Mixer, artifacts *cache.ArtifactCache, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		acquirer:  acq,
		separator: sep,
		converter: conv,
		mixer:     mix,
		cache:     artifacts,
		timeout:   timeout,
	}
}

// CoverKey 成品缓存 key。自动序号每次可能选到不同的歌，不参与缓存。
func CoverKey(req model.TrackRequest, fingerprint string) (string, bool) {
	if req.SelectorIndex <= 0 {
		return "", false
	}
	return cache.Key("cover", strings.TrimSpace(req.Query), strconv.Itoa(req.SelectorIndex), strconv.Itoa(req.Quality), fingerprint), true
}

// SpeechKey 语音缓存 key
func SpeechKey(text, fingerprint string) string {
	return cache.Key("tts", strings.TrimSpace(text), fingerprint)
}

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) lookup(key string) (*model.Artifact, bool) {
	if o.cache == nil || key == "" {
		return nil, false
	}
	return o.cache.Lookup(key)
}

func (o *Orchestrator) store(key string, art *model.Artifact) {
	if o.cache == nil || key == "" || art == nil {
		return
	}
	if err := o.cache.Store(key, art); err != nil {
		logger.Warn("写入产物缓存失败", logger.String("path", art.Path), logger.ErrorField(err))
	}
}

// Cover ACQUIRE → SEPARATE → MATCH_VOCALS → CONVERT → MIXDOWN → DONE
func (o *Orchestrator) Cover(ctx context.Context, req model.TrackRequest, obs Observer) Result {
	start := time.Now()
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	if err := req.Validate(); err != nil {
		return failed(StageAcquire, errs.Precondition(string(StageAcquire), "%v", err), start)
	}

	fp := o.converter.Fingerprint()
	coverKey, cacheable := CoverKey(req, fp)
	if cacheable {
		if art, ok := o.lookup(coverKey); ok {
			logger.Info("命中成品缓存", logger.String("request", req.String()), logger.String("path", art.Path))
			obs.emit(StageDone, EventSkipped, art.Path, "命中缓存")
			return succeeded(art.Path, "翻唱完成", true, start)
		}
	}

	logger.Info("开始翻唱流水线", logger.String("request", req.String()))

	// ACQUIRE
	obs.emit(StageAcquire, EventStarted, "", req.Query)
	raw, err := o.acquirer.Acquire(ctx, req)
	if err != nil {
		return o.fail(StageAcquire, err, obs, start)
	}
	obs.emit(StageAcquire, EventFinished, raw.Path, "")

	// 同一原始音频已经处理过时直接跳到结果
	rawKey := cache.SourceKey(model.StageFinal, raw.Path, fp)
	if art, ok := o.lookup(rawKey); ok {
		obs.emit(StageDone, EventSkipped, art.Path, "命中缓存")
		o.store(coverKey, art)
		return succeeded(art.Path, "翻唱完成", true, start)
	}

	// SEPARATE
	obs.emit(StageSeparate, EventStarted, raw.Path, "")
	stems, err := o.separator.Separate(ctx, raw)
	if err != nil {
		return o.fail(StageSeparate, err, obs, start)
	}
	obs.emit(StageSeparate, EventFinished, stems.Vocals.Path, "")

	// MATCH_VOCALS
	vocals, instrumental, err := o.matchStems(raw, stems)
	if err != nil {
		return o.fail(StageMatchVocals, err, obs, start)
	}
	obs.emit(StageMatchVocals, EventFinished, vocals.Path, "")

	// CONVERT
	convKey := cache.SourceKey(model.StageConverted, vocals.Path, fp)
	converted, hit := o.lookup(convKey)
	if hit {
		obs.emit(StageConvert, EventSkipped, converted.Path, "命中缓存")
	} else {
		obs.emit(StageConvert, EventStarted, vocals.Path, "")
		converted, err = o.converter.ConvertAudio(ctx, vocals)
		if err != nil {
			return o.fail(StageConvert, err, obs, start)
		}
		o.store(convKey, converted)
		obs.emit(StageConvert, EventFinished, converted.Path, "")
	}

	// MIXDOWN
	obs.emit(StageMixdown, EventStarted, "", "")
	final, err := o.mixer.Mixdown(ctx, converted, instrumental)
	if err != nil {
		return o.fail(StageMixdown, err, obs, start)
	}
	obs.emit(StageMixdown, EventFinished, final.Path, "")

	o.store(rawKey, final)
	o.store(coverKey, final)
	obs.emit(StageDone, EventFinished, final.Path, "")

	logger.Info("翻唱流水线完成",
		logger.String("request", req.String()),
		logger.String("output", final.Path),
		logger.Duration("elapsed", time.Since(start)))
	return succeeded(final.Path, "翻唱完成", false, start)
}

// Speech 文字转语音
func (o *Orchestrator) Speech(ctx context.Context, text string, obs Observer) Result {
	start := time.Now()
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	text = strings.TrimSpace(text)
	if text == "" {
		return failed(StageSynthesize, errs.Precondition(string(StageSynthesize), "文本不能为空"), start)
	}

	key := SpeechKey(text, o.converter.Fingerprint())
	if art, ok := o.lookup(key); ok {
		obs.emit(StageDone, EventSkipped, art.Path, "命中缓存")
		return succeeded(art.Path, "语音合成完成", true, start)
	}

	obs.emit(StageSynthesize, EventStarted, "", "")
	art, err := o.converter.Synthesize(ctx, text)
	if err != nil {
		return o.fail(StageSynthesize, err, obs, start)
	}
	o.store(key, art)
	obs.emit(StageDone, EventFinished, art.Path, "")
	return succeeded(art.Path, "语音合成完成", false, start)
}

// matchStems 分离工具可能改写文件名，按实际存在的文件重新定位人声和伴奏
func (o *Orchestrator) matchStems(raw *model.Artifact, stems *model.StemPair) (*model.Artifact, *model.Artifact, error) {
	dir := o.separator.ResultDir()
	if dir == "" {
		dir = filepath.Dir(stems.Vocals.Path)
	}
	expected := raw.BaseName()

	vocalsPath, err := MatchStem(dir, expected, "_vocals")
	if err != nil {
		return nil, nil, err
	}
	// 伴奏优先与人声使用同一个前缀
	matchedBase := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(vocalsPath), filepath.Ext(vocalsPath)), "_vocals")
	instPath, err := MatchStem(dir, matchedBase, "_other")
	if err != nil {
		return nil, nil, err
	}

	return model.NewArtifact(vocalsPath, model.StageVocals, raw),
		model.NewArtifact(instPath, model.StageInstrumental, raw), nil
}

func (o *Orchestrator) fail(stage Stage, err error, obs Observer, start time.Time) Result {
	res := failed(stage, err, start)
	logger.Error("流水线失败",
		logger.String("stage", string(stage)),
		logger.String("kind", res.ErrorKind),
		logger.String("screenshot", res.Screenshot),
		logger.ErrorField(err))
	obs.emit(stage, EventFailed, "", res.Message)
	return res
}
