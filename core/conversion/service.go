// Package conversion 通过 Gradio WebUI 完成变声和文字转语音。
package conversion

import (
	"context"
	"errors"
)

// Mode 提交方式
type Mode int

const (
	ModeConvert Mode = iota // 上传人声做音色转换
	ModeSpeech              // 文字转语音
)

func (m Mode) String() string {
	if m == ModeSpeech {
		return "tts"
	}
	return "convert"
}

var (
	// ErrModelNotFound 下拉框中没有与配置完全一致的模型
	ErrModelNotFound = errors.New("模型不存在")
	// ErrOutputNotFound 轮询结束仍没有可用的输出音频
	ErrOutputNotFound = errors.New("未能获取到音频输出")
)

// RemoteConversionService 远程变声工具上的操作，每个实例对应一个页面会话
type RemoteConversionService interface {
	// RefreshModels 刷新模型列表
	RefreshModels(ctx context.Context) error
	// SelectModel 按名称精确选择模型，找不到时返回 ErrModelNotFound
	SelectModel(ctx context.Context, name string) error
	UnloadModel(ctx context.Context) error
	LoadModel(ctx context.Context) error
	SubmitAudio(ctx context.Context, path string) error
	// SubmitText 切到 TTS 页签、选择音色并填入文本
	SubmitText(ctx context.Context, text, voice string) error
	// Trigger 点击对应模式的提交按钮
	Trigger(ctx context.Context, mode Mode) error
	// AwaitOutput 等待满足 match 的输出音频地址，超出上限返回 ErrOutputNotFound
	AwaitOutput(ctx context.Context, match OutputMatcher) (string, error)
	// DownloadOutput 把输出音频保存到 dest
	DownloadOutput(ctx context.Context, src, dest string) error
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// ServiceFactory 为一次调用打开新的会话
type ServiceFactory func(ctx context.Context) (RemoteConversionService, error)
