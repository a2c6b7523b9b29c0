package model

import "time"

// JobKind 任务类型
type JobKind string

const (
	JobKindCover  JobKind = "cover"
	JobKindSpeech JobKind = "tts"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// CoverJob 一次翻唱/TTS 请求的记录
type CoverJob struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind      JobKind   `gorm:"type:varchar(16);index" json:"kind"`
	Query     string    `gorm:"type:varchar(255)" json:"query,omitempty"`
	Selector  int       `json:"selector,omitempty"`
	Quality   int       `json:"quality,omitempty"`
	Text      string    `gorm:"type:text" json:"text,omitempty"`
	TargetID  string    `gorm:"type:varchar(32)" json:"targetId,omitempty"`
	IsGroup   bool      `json:"isGroup"`
	Status    JobStatus `gorm:"type:varchar(16);index" json:"status"`
	Stage     string    `gorm:"type:varchar(32)" json:"stage,omitempty"`
	FinalPath string    `gorm:"type:varchar(512)" json:"finalPath,omitempty"`
	PublicURL string    `gorm:"type:varchar(1024)" json:"publicUrl,omitempty"`
	ErrorKind string    `gorm:"type:varchar(32)" json:"errorKind,omitempty"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (CoverJob) TableName() string {
	return "cover_jobs"
}

// Finished 是否已结束
func (j *CoverJob) Finished() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
