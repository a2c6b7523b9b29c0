package pipeline

import (
	"time"

	"CoverFM/core/errs"
)

// Stage 编排阶段
type Stage string

const (
	StageAcquire     Stage = "ACQUIRE"
	StageSeparate    Stage = "SEPARATE"
	StageMatchVocals Stage = "MATCH_VOCALS"
	StageConvert     Stage = "CONVERT"
	StageMixdown     Stage = "MIXDOWN"
	StageSynthesize  Stage = "SYNTHESIZE"
	StageDone        Stage = "DONE"
)

// Result 返回给投递层的最终结果
type Result struct {
	Success    bool          `json:"success"`
	FinalPath  string        `json:"finalPath,omitempty"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	Stage      Stage         `json:"stage,omitempty"`
	Message    string        `json:"message"`
	Screenshot string        `json:"screenshot,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

func succeeded(path, message string, cached bool, start time.Time) Result {
	return Result{
		Success:   true,
		FinalPath: path,
		Stage:     StageDone,
		Message:   message,
		Cached:    cached,
		Elapsed:   time.Since(start),
	}
}

// failed 把阶段错误映射为结果，Message 是给用户看的提示
func failed(stage Stage, err error, start time.Time) Result {
	return Result{
		Success:    false,
		ErrorKind:  errs.KindOf(err).String(),
		Stage:      stage,
		Message:    errs.UserMessage(err),
		Screenshot: errs.ScreenshotOf(err),
		Elapsed:    time.Since(start),
	}
}

// EventStatus 阶段事件类型
type EventStatus string

const (
	EventStarted  EventStatus = "started"
	EventSkipped  EventStatus = "skipped"
	EventFinished EventStatus = "finished"
	EventFailed   EventStatus = "failed"
)

// Event 阶段进度事件，推送给 websocket 订阅者
type Event struct {
	JobID   string      `json:"jobId,omitempty"`
	Stage   Stage       `json:"stage"`
	Status  EventStatus `json:"status"`
	Path    string      `json:"path,omitempty"`
	Message string      `json:"message,omitempty"`
	At      time.Time   `json:"at"`
}

// Observer 接收阶段事件，可为 nil
type Observer func(Event)

func (o Observer) emit(stage Stage, status EventStatus, path, message string) {
	if o == nil {
		return
	}
	o(Event{Stage: stage, Status: status, Path: path, Message: message, At: time.Now()})
}
