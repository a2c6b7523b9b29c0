// Package errs 定义流水线各阶段共享的错误类型。
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound 搜索无可用结果，可换 selector 重试
	KindNotFound
	// KindTimeout 轮询超过上限，调用方可稍后重试
	KindTimeout
	// KindPrecondition 输入文件缺失或配置错误，不可直接重试
	KindPrecondition
	// KindRemoteTool 被驱动的 WebUI 处于意外状态
	KindRemoteTool
	// KindCanceled 请求被取消或超过整体期限
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindTimeout:
		return "Timeout"
	case KindPrecondition:
		return "PreconditionViolation"
	case KindRemoteTool:
		return "RemoteToolError"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Error 携带阶段上下文的错误
type Error struct {
	Kind       Kind
	Stage      string
	Op         string
	Screenshot string // 失败时保存的调试截图路径
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Stage, e.Kind)
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Screenshot != "" {
		msg += " (screenshot: " + e.Screenshot + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E 构造一个阶段错误。如果 err 已经是 *Error 则原样返回，保留最内层的分类。
func E(kind Kind, stage, op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if kind != KindTimeout {
			kind = KindCanceled
		}
	}
	return &Error{Kind: kind, Stage: stage, Op: op, Err: err}
}

func NotFound(stage, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func Timeout(stage, format string, args ...interface{}) error {
	return &Error{Kind: KindTimeout, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func Precondition(stage, format string, args ...interface{}) error {
	return &Error{Kind: KindPrecondition, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func RemoteTool(stage, op string, err error) error {
	return E(KindRemoteTool, stage, op, err)
}

// WithScreenshot 给已有错误附加截图路径
func WithScreenshot(err error, path string) error {
	if err == nil || path == "" {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Screenshot == "" {
			se.Screenshot = path
		}
		return err
	}
	return &Error{Kind: KindRemoteTool, Screenshot: path, Err: err}
}

// KindOf 返回错误类别，非 *Error 时根据 context 错误推断
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// StageOf 返回出错的阶段名
func StageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ScreenshotOf 返回附带的截图路径
func ScreenshotOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Screenshot
	}
	return ""
}

// UserMessage 给聊天用户看的提示，不暴露浏览器自动化细节
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNotFound:
		return "搜索失败：未找到合适的音乐，可以换个序号再试试~"
	case KindTimeout:
		return "处理超时了，请稍后再试"
	case KindPrecondition:
		return "处理失败：缺少必要的输入文件或配置，请检查后重新提交"
	case KindRemoteTool:
		return "处理服务出现异常，请稍后再试"
	case KindCanceled:
		return "请求已取消或等待时间过长，请稍后再试"
	default:
		return "处理过程中出现错误，请稍后再试"
	}
}
